package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// OwnerCRM is the part of the CRM the ownership rule needs.
type OwnerCRM interface {
	ContactStore
	UserStore
	StageStore
}

// OwnerService hands the contact of a won deal over to the configured
// account manager.
type OwnerService struct {
	crm         OwnerCRM
	pattern     string
	managerName string
	recorder    ActionRecorder
	now         func() time.Time
}

func NewOwnerService(crm OwnerCRM, cfg RuleConfig, recorder ActionRecorder) *OwnerService {
	return &OwnerService{
		crm:         crm,
		pattern:     cfg.AccountManagerEmailPattern,
		managerName: cfg.AccountManagerName,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Apply evaluates a changed deal. It reports whether the deal's contact was
// reassigned.
func (s *OwnerService) Apply(ctx context.Context, runID string, d Deal) (bool, error) {
	lg := log.WithFields(log.Fields{"run": runID, "deal": d.ID})
	won, err := s.isWon(ctx, d)
	if err != nil {
		return false, err
	}
	if !won {
		lg.Trace("deal is not in a won stage")
		return false, nil
	}
	if d.ContactID == 0 {
		lg.Debug("won deal has no contact")
		return false, nil
	}
	lg.Info("verifying deal in won stage")

	contact, err := s.crm.GetContact(ctx, d.ContactID)
	if err != nil {
		return false, fmt.Errorf("fetch contact %d: %w", d.ContactID, err)
	}
	if contact == nil {
		return false, &MissingResourceError{Kind: "contact", Key: fmt.Sprint(d.ContactID)}
	}
	owner, err := fetchOwner(ctx, s.crm, contact.OwnerID)
	if err != nil {
		return false, err
	}
	if strings.Contains(owner.Email, s.pattern) {
		lg.WithFields(log.Fields{"contact": contact.ID, "owner": owner.ID}).Debug("contact already owned by an account manager")
		return false, nil
	}
	if err := s.reassign(ctx, lg.WithField("contact", contact.ID), runID, d, *contact); err != nil {
		return false, err
	}
	return true, nil
}

// isWon looks the stage up among inactive stages only.
func (s *OwnerService) isWon(ctx context.Context, d Deal) (bool, error) {
	stages, err := listStages(ctx, s.crm, false)
	if err != nil {
		return false, err
	}
	for _, st := range stages {
		if st.Category == StageCategoryWon && st.ID == d.StageID {
			return true, nil
		}
	}
	return false, nil
}

func (s *OwnerService) reassign(ctx context.Context, lg *log.Entry, runID string, d Deal, c Contact) error {
	lg.Info("updating contact's owner")
	manager, err := findUserByName(ctx, s.crm, s.managerName)
	if err != nil {
		return err
	}
	if manager == nil {
		return &MissingResourceError{Kind: "user", Key: s.managerName}
	}
	lg.WithField("manager", manager.ID).Trace("account manager found")

	if _, err := s.crm.UpdateContact(ctx, c.ID, map[string]any{"owner_id": manager.ID}); err != nil {
		return fmt.Errorf("update owner of contact %d: %w", c.ID, err)
	}
	lg.WithField("owner", manager.ID).Debug("updated contact")
	record(ctx, s.recorder, Action{
		Kind:      ActionContactReassigned,
		RunID:     runID,
		ContactID: c.ID,
		DealID:    d.ID,
		OwnerID:   manager.ID,
		Name:      c.Name,
		Time:      s.now(),
	})
	return nil
}
