package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crm-workflow/crm"
	"crm-workflow/domain"
)

const tracerName = "crm-workflow"

type changeFeed interface {
	Fetch(ctx context.Context, h crm.Handler) (crm.FetchStats, error)
}

type recordDispatcher interface {
	Dispatch(ctx context.Context, runID string, rec domain.ChangeRecord) domain.Outcome
}

type runState int32

const (
	stateIdle runState = iota
	stateFetching
	stateDispatching
)

func (s runState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// RunStats summarises one sync pass.
type RunStats struct {
	RunID              string
	Records            int
	Acked              int
	Skipped            int
	Failed             int
	DealsCreated       int
	ContactsReassigned int
}

// Runner performs sync passes: it drains the change feed and hands each
// record to the dispatcher, one at a time and in feed order.
type Runner struct {
	feed       changeFeed
	dispatcher recordDispatcher
	state      atomic.Int32
	newID      func() string
	tracer     trace.Tracer
}

func NewRunner(feed changeFeed, dispatcher recordDispatcher) *Runner {
	return &Runner{
		feed:       feed,
		dispatcher: dispatcher,
		newID:      uuid.NewString,
		tracer:     otel.Tracer(tracerName),
	}
}

func (r *Runner) State() runState { return runState(r.state.Load()) }

// Run executes one pass. Record failures never fail the pass; an error is
// returned only when the feed itself could not be read.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{RunID: r.newID()}
	ctx, span := r.tracer.Start(ctx, "workflow.run", trace.WithAttributes(attribute.String("workflow.run_id", stats.RunID)))
	defer span.End()
	defer r.state.Store(int32(stateIdle))

	lg := log.WithField("run", stats.RunID)
	lg.Info("starting workflow run")
	start := time.Now()
	r.state.Store(int32(stateFetching))

	fs, err := r.feed.Fetch(ctx, func(ctx context.Context, rec domain.ChangeRecord) domain.Result {
		r.state.Store(int32(stateDispatching))
		defer r.state.Store(int32(stateFetching))
		return r.dispatch(ctx, &stats, rec)
	})

	span.SetAttributes(
		attribute.Int("workflow.records", stats.Records),
		attribute.Int("workflow.failed", stats.Failed),
	)
	fields := log.Fields{
		"session":             fs.Session,
		"records":             stats.Records,
		"acked":               stats.Acked,
		"skipped":             stats.Skipped,
		"failed":              stats.Failed,
		"deals_created":       stats.DealsCreated,
		"contacts_reassigned": stats.ContactsReassigned,
		"ms":                  time.Since(start).Milliseconds(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.WithFields(fields).WithError(err).Error("workflow run aborted by change feed error")
		return stats, err
	}
	lg.WithFields(fields).Info("workflow run finished")
	return stats, nil
}

func (r *Runner) dispatch(ctx context.Context, stats *RunStats, rec domain.ChangeRecord) domain.Result {
	ctx, span := r.tracer.Start(ctx, "workflow.dispatch", trace.WithAttributes(
		attribute.String("crm.entity_type", rec.EntityType),
		attribute.String("crm.event_type", rec.EventType),
	))
	defer span.End()

	stats.Records++
	out := r.dispatcher.Dispatch(ctx, stats.RunID, rec)
	if out.Result == domain.Skip {
		stats.Skipped++
	} else {
		stats.Acked++
	}
	if out.Err != nil {
		stats.Failed++
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	if out.Acted {
		switch rec.EntityType {
		case domain.EntityContact:
			stats.DealsCreated++
		case domain.EntityDeal:
			stats.ContactsReassigned++
		}
	}
	span.SetAttributes(attribute.String("workflow.result", out.Result.String()))
	return out.Result
}
