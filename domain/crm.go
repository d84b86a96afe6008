package domain

import (
	"context"
	"fmt"
	"time"
)

// DealSearch narrows deal listings.
type DealSearch struct {
	ContactID int64
}

// UserSearch narrows user listings.
type UserSearch struct {
	Name  string
	Email string
}

// StageSearch narrows stage listings. A nil Active lists every stage.
type StageSearch struct {
	Active *bool
}

// ActiveStages returns a search for stages with the given active flag.
func ActiveStages(active bool) StageSearch {
	return StageSearch{Active: &active}
}

// ContactStore reads and updates contacts.
type ContactStore interface {
	GetContact(ctx context.Context, id int64) (*Contact, error)
	UpdateContact(ctx context.Context, id int64, attrs map[string]any) (*Contact, error)
}

// DealStore lists and creates deals.
type DealStore interface {
	ListDeals(ctx context.Context, q DealSearch) ([]Deal, error)
	CreateDeal(ctx context.Context, d Deal) (*Deal, error)
}

// UserStore reads users.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, q UserSearch) ([]User, error)
}

// StageStore lists pipeline stages.
type StageStore interface {
	ListStages(ctx context.Context, q StageSearch) ([]Stage, error)
}

// CRM is the capability set the workflow rules rely on.
type CRM interface {
	ContactStore
	DealStore
	UserStore
	StageStore
}

// Action kinds written to the action log.
const (
	ActionDealCreated       = "deal-created"
	ActionContactReassigned = "contact-reassigned"
)

// Action describes a change the workflow made in the CRM.
type Action struct {
	Kind      string
	RunID     string
	ContactID int64
	DealID    int64
	OwnerID   int64
	Name      string
	Time      time.Time
}

// ActionRecorder persists actions for later inspection.
type ActionRecorder interface {
	Record(ctx context.Context, a Action) error
}

func fetchOwner(ctx context.Context, users UserStore, id int64) (*User, error) {
	u, err := users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch owner %d: %w", id, err)
	}
	if u == nil {
		return nil, &MissingResourceError{Kind: "user", Key: fmt.Sprint(id)}
	}
	return u, nil
}

func findUserByName(ctx context.Context, users UserStore, name string) (*User, error) {
	list, err := users.ListUsers(ctx, UserSearch{Name: name})
	if err != nil {
		return nil, fmt.Errorf("list users named %q: %w", name, err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func listStages(ctx context.Context, stages StageStore, active bool) ([]Stage, error) {
	list, err := stages.ListStages(ctx, ActiveStages(active))
	if err != nil {
		return nil, fmt.Errorf("list stages active=%t: %w", active, err)
	}
	return list, nil
}
