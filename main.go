package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"crm-workflow/crm"
	"crm-workflow/domain"
	"crm-workflow/storage"
)

func main() {
	configureLogging(os.Getenv)
	log.Info("CRM workflow service starting")

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	for _, w := range cfg.warnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := crm.New(crm.Config{
		BaseURL:           cfg.BaseURL,
		AccessToken:       cfg.AccessToken,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		log.Fatalf("crm client: %v", err)
	}
	feed, err := crm.NewSync(client, cfg.DeviceUUID)
	if err != nil {
		log.Fatalf("crm sync: %v", err)
	}

	var recorder domain.ActionRecorder
	if cfg.StorageConn != "" {
		actions, err := storage.New(ctx, cfg.StorageConn, cfg.ActionsTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		recorder = actions
		log.WithField("table", cfg.ActionsTable).Info("recording workflow actions")
	}

	var lock RunLock = &localLock{}
	if cfg.RedisConn != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConn))
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		lock = chainLock{lock, NewRedisRunLock(rc, cfg.RunLockTTL)}
	}

	dispatcher := domain.NewDispatcher(
		domain.NewDealService(client, cfg.Rules, recorder),
		domain.NewOwnerService(client, cfg.Rules, recorder),
	)
	runner := NewRunner(feed, dispatcher)

	log.WithField("interval", cfg.LoopInterval).Info("workflow scheduler started")
	schedule(ctx, runner, lock, cfg.LoopInterval, cfg.RunOnce)
}
