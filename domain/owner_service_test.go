package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newOwnerFixture() *fakeCRM {
	return &fakeCRM{
		contacts: map[int64]Contact{
			3: {ID: 3, Name: "Acme", OwnerID: 7, IsOrganization: true},
			4: {ID: 4, Name: "Globex", OwnerID: 42, IsOrganization: true},
		},
		users: map[int64]User{
			7:  {ID: 7, Name: "Owner", Email: "owner@acme.com"},
			42: {ID: 42, Name: "Jane Doe", Email: "jane@am.acme.com"},
		},
		stages: []Stage{
			{ID: 1, Category: "incoming", Active: true},
			{ID: 2, Category: StageCategoryWon, Active: true},
			{ID: 5, Category: StageCategoryWon, Active: false},
			{ID: 6, Category: "lost", Active: false},
		},
	}
}

func newTestOwnerService(crm *fakeCRM, rec ActionRecorder) *OwnerService {
	svc := NewOwnerService(crm, RuleConfig{AccountManagerEmailPattern: "@am.", AccountManagerName: "Jane Doe"}, rec)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestOwnerServiceReassignsWonDealContact(t *testing.T) {
	crm := newOwnerFixture()
	rec := &fakeRecorder{}
	svc := newTestOwnerService(crm, rec)

	acted, err := svc.Apply(context.Background(), "run-2", Deal{ID: 9, StageID: 5, ContactID: 3})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !acted {
		t.Fatalf("expected contact reassignment")
	}
	if len(crm.updated) != 1 {
		t.Fatalf("expected one update call, got %d", len(crm.updated))
	}
	call := crm.updated[0]
	if call.id != 3 || call.attrs["owner_id"] != int64(42) || len(call.attrs) != 1 {
		t.Fatalf("unexpected update %#v", call)
	}
	if len(rec.actions) != 1 || rec.actions[0].Kind != ActionContactReassigned || rec.actions[0].OwnerID != 42 || rec.actions[0].DealID != 9 {
		t.Fatalf("unexpected recorded actions %#v", rec.actions)
	}
	if q := crm.stageQuery[0]; q.Active == nil || *q.Active {
		t.Fatalf("expected won lookup among inactive stages, got %#v", q)
	}
}

func TestOwnerServiceMissingAccountManager(t *testing.T) {
	crm := newOwnerFixture()
	delete(crm.users, 42)
	svc := newTestOwnerService(crm, nil)

	acted, err := svc.Apply(context.Background(), "run", Deal{ID: 9, StageID: 5, ContactID: 3})
	if !errors.Is(err, ErrMissingResource) {
		t.Fatalf("expected missing resource error, got %v", err)
	}
	var mre *MissingResourceError
	if !errors.As(err, &mre) || mre.Kind != "user" || mre.Key != "Jane Doe" {
		t.Fatalf("unexpected error detail %#v", err)
	}
	if acted || len(crm.updated) != 0 {
		t.Fatalf("expected no update, got %#v", crm.updated)
	}
	if len(crm.userQueries) != 1 || crm.userQueries[0].Name != "Jane Doe" {
		t.Fatalf("unexpected user queries %#v", crm.userQueries)
	}
}

func TestOwnerServiceLeavesContactAlone(t *testing.T) {
	tests := []struct {
		name string
		deal Deal
	}{
		{"open stage", Deal{ID: 9, StageID: 1, ContactID: 3}},
		{"lost stage", Deal{ID: 9, StageID: 6, ContactID: 3}},
		{"won category on active stage", Deal{ID: 9, StageID: 2, ContactID: 3}},
		{"owner already account manager", Deal{ID: 9, StageID: 5, ContactID: 4}},
		{"no contact", Deal{ID: 9, StageID: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := newOwnerFixture()
			svc := newTestOwnerService(crm, nil)
			acted, err := svc.Apply(context.Background(), "run", tt.deal)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if acted || len(crm.updated) != 0 {
				t.Fatalf("expected no update, got %#v", crm.updated)
			}
		})
	}
}

func TestOwnerServicePropagatesCRMErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeCRM)
	}{
		{"stage listing", func(f *fakeCRM) { f.listStagesErr = errFakeCRM }},
		{"contact lookup", func(f *fakeCRM) { f.getContactErr = errFakeCRM }},
		{"owner lookup", func(f *fakeCRM) { f.getUserErr = errFakeCRM }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := newOwnerFixture()
			tt.setup(crm)
			svc := newTestOwnerService(crm, nil)
			_, err := svc.Apply(context.Background(), "run", Deal{ID: 9, StageID: 5, ContactID: 3})
			if !errors.Is(err, errFakeCRM) {
				t.Fatalf("expected crm error, got %v", err)
			}
			if errors.Is(err, ErrMissingResource) {
				t.Fatalf("crm errors must not be reported as missing resources")
			}
		})
	}
}
