package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/platform/apperr"
)

func TestRouter_CreatesPendingAppointment(t *testing.T) {
	f := newFixture()
	doc := f.users.add(identity.UserTypePhysician)
	patient := f.users.add(identity.UserTypePatient)
	responseID := uuid.New()

	a, err := f.router.Route(context.Background(), RouteRequest{
		PatientID: patient, CaregiverID: doc, Conduct: "See within a week", Score: 15, ResponseID: responseID,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	phys, prof := a.Caregiver.Columns()
	if phys == nil || *phys != doc || prof != nil {
		t.Errorf("expected physician column %s only, got %v/%v", doc, phys, prof)
	}
	if a.Status != StatusPending || !a.ScheduledAt.Equal(fixedNow) {
		t.Errorf("expected pending at now, got %s at %s", a.Status, a.ScheduledAt)
	}
	if a.TotalScoreAtTime == nil || *a.TotalScoreAtTime != 15 || a.Notes == nil || *a.Notes != "See within a week" {
		t.Errorf("unexpected snapshot or notes: %+v", a)
	}
	if len(f.repo.appts) != 1 {
		t.Errorf("expected 1 appointment, got %d", len(f.repo.appts))
	}
}

func TestRouter_UpdatesExistingAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doc := f.users.add(identity.UserTypePhysician)
	pro := f.users.add(identity.UserTypeProfessional)
	patient := f.users.add(identity.UserTypePatient)
	responseID := uuid.New()

	first, err := f.router.Route(ctx, RouteRequest{PatientID: patient, CaregiverID: doc, Score: 12, ResponseID: responseID})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	// Staff confirmed and moved it; a re-route resets it.
	stored := f.repo.appts[first.ID]
	stored.Status = StatusConfirmed
	stored.ScheduledAt = fixedNow.Add(72 * time.Hour)

	f.router.now = func() time.Time { return fixedNow.Add(time.Hour) }
	second, err := f.router.Route(ctx, RouteRequest{PatientID: patient, CaregiverID: pro, Conduct: "Refer", Score: 22, ResponseID: responseID})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if second.ID != first.ID || len(f.repo.appts) != 1 {
		t.Fatalf("expected the same appointment to be updated, got %d appointments", len(f.repo.appts))
	}
	if second.Caregiver != Professional(pro) || second.Status != StatusPending {
		t.Errorf("expected pending professional appointment, got %+v", second)
	}
	if !second.ScheduledAt.Equal(fixedNow.Add(time.Hour)) || *second.TotalScoreAtTime != 22 {
		t.Errorf("expected time reset and new snapshot, got %s / %d", second.ScheduledAt, *second.TotalScoreAtTime)
	}
}

func TestRouter_SkipsSlotConflictCheck(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doc := f.users.add(identity.UserTypePhysician)
	patient := f.users.add(identity.UserTypePatient)

	for i := 0; i < 2; i++ {
		if _, err := f.router.Route(ctx, RouteRequest{PatientID: patient, CaregiverID: doc, Score: 10, ResponseID: uuid.New()}); err != nil {
			t.Fatalf("Route %d: %v", i, err)
		}
	}
	if len(f.repo.appts) != 2 {
		t.Errorf("expected two routed appointments in the same slot, got %d", len(f.repo.appts))
	}
}

func TestRouter_PatientTargetRoutedAsProfessional(t *testing.T) {
	f := newFixture()
	odd := f.users.add(identity.UserTypePatient)
	patient := f.users.add(identity.UserTypePatient)

	a, err := f.router.Route(context.Background(), RouteRequest{PatientID: patient, CaregiverID: odd, ResponseID: uuid.New()})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if a.Caregiver != Professional(odd) {
		t.Errorf("expected professional caregiver, got %+v", a.Caregiver)
	}
}

func TestRouter_UnknownCaregiver(t *testing.T) {
	f := newFixture()
	_, err := f.router.Route(context.Background(), RouteRequest{PatientID: uuid.New(), CaregiverID: uuid.New(), ResponseID: uuid.New()})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if len(f.repo.appts) != 0 {
		t.Error("nothing must be stored for an unknown caregiver")
	}
}
