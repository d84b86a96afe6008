package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// ContactHandler evaluates contact changes.
type ContactHandler interface {
	Apply(ctx context.Context, runID string, c Contact) (bool, error)
}

// DealHandler evaluates deal changes.
type DealHandler interface {
	Apply(ctx context.Context, runID string, d Deal) (bool, error)
}

// Outcome is the result of dispatching one change record. Result decides
// whether the feed may advance; Acted and Err describe what the rule did.
type Outcome struct {
	Result Result
	Acted  bool
	Err    error
}

// Dispatcher routes change records to the rule for their entity type.
type Dispatcher struct {
	contacts ContactHandler
	deals    DealHandler
}

func NewDispatcher(contacts ContactHandler, deals DealHandler) Dispatcher {
	return Dispatcher{contacts: contacts, deals: deals}
}

// Dispatch evaluates a single record. Rule failures are logged and the record
// is still acknowledged; only a cancelled context leaves it unacknowledged.
func (d Dispatcher) Dispatch(ctx context.Context, runID string, rec ChangeRecord) (out Outcome) {
	if ctx.Err() != nil {
		return Outcome{Result: Skip}
	}
	lg := log.WithFields(log.Fields{"run": runID, "entity": rec.EntityType, "event": rec.EventType})
	if rec.EntityType != EntityContact && rec.EntityType != EntityDeal {
		lg.Trace("no rule for entity type")
		return Outcome{Result: Ack}
	}
	if !rec.Triggers() {
		lg.Debug("ignoring event type")
		return Outcome{Result: Ack}
	}

	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Result: Ack, Err: fmt.Errorf("panic: %v", p)}
			lg.WithError(out.Err).Error("rule evaluation panicked")
		}
	}()

	var (
		id    int64
		acted bool
		err   error
	)
	switch rec.EntityType {
	case EntityContact:
		var c Contact
		if err = sonic.Unmarshal(rec.Data, &c); err != nil {
			err = fmt.Errorf("decode contact: %w", err)
			break
		}
		id = c.ID
		lg = lg.WithField("contact", id)
		lg.Debug("contact sync event")
		acted, err = d.contacts.Apply(ctx, runID, c)
	case EntityDeal:
		var dl Deal
		if err = sonic.Unmarshal(rec.Data, &dl); err != nil {
			err = fmt.Errorf("decode deal: %w", err)
			break
		}
		id = dl.ID
		lg = lg.WithField("deal", id)
		lg.Debug("deal sync event")
		acted, err = d.deals.Apply(ctx, runID, dl)
	}
	if err != nil {
		logFailure(lg, rec.EntityType, id, err)
	}
	return Outcome{Result: Ack, Acted: acted, Err: err}
}

func logFailure(lg *log.Entry, entity string, id int64, err error) {
	if errors.Is(err, ErrMissingResource) {
		lg.WithError(err).WithField("missing_resource", true).Errorf("cannot process %s (id=%d): required resource missing, check workflow configuration", entity, id)
		return
	}
	lg.WithError(err).Errorf("cannot process %s (id=%d)", entity, id)
}
