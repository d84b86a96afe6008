package domain

import (
	"context"
	"errors"
	"fmt"
)

var errFakeCRM = errors.New("crm unavailable")

type updateCall struct {
	id    int64
	attrs map[string]any
}

type fakeCRM struct {
	contacts map[int64]Contact
	users    map[int64]User
	stages   []Stage
	deals    []Deal

	getContactErr error
	getUserErr    error
	listDealsErr  error
	listStagesErr error
	createErr     error

	created     []Deal
	updated     []updateCall
	stageQuery  []StageSearch
	userQueries []UserSearch
	nextDealID  int64
}

func (f *fakeCRM) GetContact(ctx context.Context, id int64) (*Contact, error) {
	if f.getContactErr != nil {
		return nil, f.getContactErr
	}
	c, ok := f.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %d: %w", id, errFakeCRM)
	}
	return &c, nil
}

func (f *fakeCRM) UpdateContact(ctx context.Context, id int64, attrs map[string]any) (*Contact, error) {
	f.updated = append(f.updated, updateCall{id: id, attrs: attrs})
	c := f.contacts[id]
	if owner, ok := attrs["owner_id"].(int64); ok {
		c.OwnerID = owner
	}
	if f.contacts == nil {
		f.contacts = map[int64]Contact{}
	}
	f.contacts[id] = c
	return &c, nil
}

func (f *fakeCRM) ListDeals(ctx context.Context, q DealSearch) ([]Deal, error) {
	if f.listDealsErr != nil {
		return nil, f.listDealsErr
	}
	var out []Deal
	for _, d := range f.deals {
		if q.ContactID == 0 || d.ContactID == q.ContactID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCRM) CreateDeal(ctx context.Context, d Deal) (*Deal, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextDealID++
	d.ID = 1000 + f.nextDealID
	f.created = append(f.created, d)
	f.deals = append(f.deals, d)
	return &d, nil
}

func (f *fakeCRM) GetUser(ctx context.Context, id int64) (*User, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, errFakeCRM)
	}
	return &u, nil
}

func (f *fakeCRM) ListUsers(ctx context.Context, q UserSearch) ([]User, error) {
	f.userQueries = append(f.userQueries, q)
	var out []User
	for _, u := range f.users {
		if q.Name != "" && u.Name != q.Name {
			continue
		}
		if q.Email != "" && u.Email != q.Email {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeCRM) ListStages(ctx context.Context, q StageSearch) ([]Stage, error) {
	f.stageQuery = append(f.stageQuery, q)
	if f.listStagesErr != nil {
		return nil, f.listStagesErr
	}
	var out []Stage
	for _, s := range f.stages {
		if q.Active != nil && s.Active != *q.Active {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeRecorder struct {
	actions []Action
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, a Action) error {
	f.actions = append(f.actions, a)
	return f.err
}
