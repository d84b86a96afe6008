package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type workflowRunner interface {
	Run(ctx context.Context) (RunStats, error)
}

// schedule runs the workflow until ctx is cancelled, waiting interval between
// the end of one run and the start of the next. A run that cannot take the
// lock is skipped.
func schedule(ctx context.Context, r workflowRunner, lock RunLock, interval time.Duration, once bool) {
	for {
		runLocked(ctx, r, lock)
		if once {
			return
		}
		if ctx.Err() != nil {
			log.Info("workflow scheduler stopped")
			return
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info("workflow scheduler stopped")
			return
		case <-t.C:
		}
	}
}

func runLocked(ctx context.Context, r workflowRunner, lock RunLock) bool {
	release, ok, err := lock.TryLock(ctx)
	if err != nil {
		log.WithError(err).Error("cannot acquire run lock, skipping run")
		return false
	}
	if !ok {
		log.Info("previous workflow run still active, skipping run")
		return false
	}
	defer release()
	if _, err := r.Run(ctx); err != nil {
		// logged by the runner; the next scheduled run retries
		return false
	}
	return true
}
