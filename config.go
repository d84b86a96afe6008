package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"crm-workflow/crm"
	"crm-workflow/domain"
)

// Config holds the worker settings read from the environment.
type Config struct {
	AccessToken       string
	DeviceUUID        string
	BaseURL           string
	Rules             domain.RuleConfig
	LoopInterval      time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
	RedisConn         string
	RunLockTTL        time.Duration
	StorageConn       string
	ActionsTable      string
	RunOnce           bool
}

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		AccessToken: getenv("BASE_CRM_TOKEN"),
		DeviceUUID:  getenv("DEVICE_UUID"),
		BaseURL:     getenv("CRM_BASE_URL"),
		Rules: domain.RuleConfig{
			SalesRepEmailPattern:       getenv("SALES_REP_EMAIL_PATTERN"),
			AccountManagerEmailPattern: getenv("ACCOUNT_MANAGER_EMAIL_PATTERN"),
			AccountManagerName:         getenv("ACCOUNT_MANAGER_NAME"),
			DealNameDateFormat:         getenv("DEAL_NAME_DATE_FORMAT"),
		},
		LoopInterval:      time.Minute,
		RequestsPerSecond: 10,
		Timeout:           30 * time.Second,
		RedisConn:         getenv("REDIS_CONNECTION_STRING"),
		RunLockTTL:        10 * time.Minute,
		StorageConn:       getenv("STORAGE_CONNECTION_STRING"),
		ActionsTable:      getenv("ACTIONS_TABLE"),
	}
	if cfg.AccessToken == "" {
		return cfg, errors.New("missing Base CRM OAuth2 token (BASE_CRM_TOKEN)")
	}
	if cfg.DeviceUUID == "" {
		return cfg, errors.New("missing Base CRM device uuid (DEVICE_UUID)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = crm.DefaultBaseURL
	}
	if cfg.Rules.DealNameDateFormat == "" {
		cfg.Rules.DealNameDateFormat = domain.ISODatePattern
	}
	if cfg.ActionsTable == "" {
		cfg.ActionsTable = "WorkflowActions"
	}
	if v := getenv("LOOP_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid LOOP_INTERVAL_MS %q", v)
		}
		cfg.LoopInterval = time.Duration(n) * time.Millisecond
	}
	if v := getenv("CRM_REQUESTS_PER_SECOND"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid CRM_REQUESTS_PER_SECOND %q", v)
		}
		cfg.RequestsPerSecond = n
	}
	if v := getenv("CRM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid CRM_TIMEOUT %q", v)
		}
		cfg.Timeout = d
	}
	if v := getenv("RUN_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid RUN_LOCK_TTL %q", v)
		}
		cfg.RunLockTTL = d
	}
	if v := getenv("RUN_ONCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RUN_ONCE %q", v)
		}
		cfg.RunOnce = b
	}
	return cfg, nil
}

// warnings reports settings that are accepted but likely wrong.
func (c Config) warnings() []string {
	var out []string
	if _, err := domain.FormatDate(c.Rules.DealNameDateFormat, time.Now()); err != nil {
		out = append(out, fmt.Sprintf("deal name date format %q is invalid (%v), deals will use %s", c.Rules.DealNameDateFormat, err, domain.ISODatePattern))
	}
	if c.Rules.SalesRepEmailPattern == "" {
		out = append(out, "SALES_REP_EMAIL_PATTERN is empty and matches every owner")
	}
	if c.Rules.AccountManagerEmailPattern == "" {
		out = append(out, "ACCOUNT_MANAGER_EMAIL_PATTERN is empty and matches every owner")
	}
	if strings.TrimSpace(c.Rules.AccountManagerName) == "" {
		out = append(out, "ACCOUNT_MANAGER_NAME is empty, won deals cannot be reassigned")
	}
	return out
}

func configureLogging(getenv func(string) string) {
	if dbg, err := strconv.ParseBool(getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			log.Warnf("invalid LOG_LEVEL %q, keeping %s", v, log.GetLevel())
		} else {
			log.SetLevel(lvl)
		}
	}
	if strings.EqualFold(getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
