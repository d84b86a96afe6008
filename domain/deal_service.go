package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// RuleConfig carries the values the business rules are parameterised with.
type RuleConfig struct {
	SalesRepEmailPattern       string
	AccountManagerEmailPattern string
	AccountManagerName         string
	DealNameDateFormat         string
}

// DealCRM is the part of the CRM the deal creation rule needs.
type DealCRM interface {
	DealStore
	UserStore
	StageStore
}

// DealService opens a deal for organisation contacts owned by a sales
// representative when the contact has no deal in an active stage.
type DealService struct {
	crm      DealCRM
	pattern  string
	format   string
	recorder ActionRecorder
	now      func() time.Time
}

func NewDealService(crm DealCRM, cfg RuleConfig, recorder ActionRecorder) *DealService {
	return &DealService{
		crm:      crm,
		pattern:  cfg.SalesRepEmailPattern,
		format:   cfg.DealNameDateFormat,
		recorder: recorder,
		now:      time.Now,
	}
}

// Apply evaluates a changed contact. It reports whether a deal was created.
func (s *DealService) Apply(ctx context.Context, runID string, c Contact) (bool, error) {
	lg := log.WithFields(log.Fields{"run": runID, "contact": c.ID})
	ok, err := s.shouldCreate(ctx, lg, c)
	if err != nil || !ok {
		return false, err
	}
	if err := s.create(ctx, lg, runID, c); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DealService) shouldCreate(ctx context.Context, lg *log.Entry, c Contact) (bool, error) {
	if !c.IsOrganization {
		lg.Debug("contact is not an organisation")
		return false, nil
	}
	owner, err := fetchOwner(ctx, s.crm, c.OwnerID)
	if err != nil {
		return false, err
	}
	if !strings.Contains(owner.Email, s.pattern) {
		lg.WithField("owner", owner.ID).Debug("contact owner is not a sales representative")
		return false, nil
	}
	active, err := s.hasActiveDeal(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if active {
		lg.Debug("contact already has a deal in an active stage")
		return false, nil
	}
	return true, nil
}

func (s *DealService) hasActiveDeal(ctx context.Context, contactID int64) (bool, error) {
	stages, err := listStages(ctx, s.crm, true)
	if err != nil {
		return false, err
	}
	active := make(map[int64]struct{}, len(stages))
	for _, st := range stages {
		active[st.ID] = struct{}{}
	}
	deals, err := s.crm.ListDeals(ctx, DealSearch{ContactID: contactID})
	if err != nil {
		return false, fmt.Errorf("list deals for contact %d: %w", contactID, err)
	}
	for _, d := range deals {
		if _, ok := active[d.StageID]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *DealService) create(ctx context.Context, lg *log.Entry, runID string, c Contact) error {
	now := s.now()
	suffix, err := FormatDateOrISO(s.format, now)
	if err != nil {
		lg.WithError(err).WithField("pattern", s.format).Error("illegal deal name date format, using " + ISODatePattern)
	}
	deal := Deal{
		Name:      c.Name + " " + suffix,
		ContactID: c.ID,
		OwnerID:   c.OwnerID,
	}
	lg.WithField("name", deal.Name).Info("creating new deal")
	created, err := s.crm.CreateDeal(ctx, deal)
	if err != nil {
		return fmt.Errorf("create deal for contact %d: %w", c.ID, err)
	}
	if created != nil {
		deal = *created
	}
	lg.WithField("deal", deal.ID).Debug("created new deal")
	record(ctx, s.recorder, Action{
		Kind:      ActionDealCreated,
		RunID:     runID,
		ContactID: c.ID,
		DealID:    deal.ID,
		OwnerID:   deal.OwnerID,
		Name:      deal.Name,
		Time:      now,
	})
	return nil
}

func record(ctx context.Context, r ActionRecorder, a Action) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, a); err != nil {
		log.WithError(err).WithFields(log.Fields{"run": a.RunID, "action": a.Kind, "contact": a.ContactID}).Warn("failed to record action")
	}
}
