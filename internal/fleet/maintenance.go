package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flightdeck/internal/domain"
	"flightdeck/internal/events"
)

// MaintenanceOpenOptions are parameters for reporting an issue.
type MaintenanceOpenOptions struct {
	AircraftID  string
	Kind        string // preventive or corrective
	Incident    bool   // resulted from an in-flight incident
	Description string
	LogURL      string
	ActorID     string
}

// OpenMaintenance reports an issue on an aircraft. Corrective work, or any
// event flagged as resulting from an in-flight incident, grounds the
// aircraft.
func (s *Service) OpenMaintenance(ctx context.Context, opts MaintenanceOpenOptions) (*domain.MaintenanceEvent, error) {
	if opts.AircraftID == "" {
		return nil, errors.New("aircraft is required")
	}
	if opts.Kind == "" {
		opts.Kind = "preventive"
	}
	if opts.Kind != "preventive" && opts.Kind != "corrective" {
		return nil, fmt.Errorf("unknown maintenance kind %q", opts.Kind)
	}
	if _, err := s.Stores.Aircraft.Get(ctx, opts.AircraftID); err != nil {
		return nil, err
	}
	grounding := opts.Kind == "corrective" || opts.Incident
	ev := &domain.MaintenanceEvent{
		AircraftID:  opts.AircraftID,
		Kind:        opts.Kind,
		Status:      "scheduled",
		Grounding:   grounding,
		Description: opts.Description,
		LogURL:      opts.LogURL,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	}
	created, err := s.Stores.Maintenance.Create(ctx, ev)
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "maintenance.opened", "maintenance_event", created.ID, opts.ActorID, events.EventPayload{
		"aircraft_id": opts.AircraftID,
		"kind":        opts.Kind,
		"grounding":   grounding,
	})
	if grounding {
		if _, err := s.SyncStatus(ctx, opts.AircraftID, opts.ActorID, nil); err != nil {
			return created, fmt.Errorf("maintenance opened but aircraft %s not grounded: %w", opts.AircraftID, err)
		}
	}
	return created, nil
}

// StartMaintenance moves a scheduled event to in_progress.
func (s *Service) StartMaintenance(ctx context.Context, id, actorID string) (*domain.MaintenanceEvent, error) {
	ev, err := s.Stores.Maintenance.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Status != "scheduled" {
		return nil, fmt.Errorf("maintenance %s is %s, not scheduled", id, ev.Status)
	}
	status := "in_progress"
	updated, err := s.Stores.Maintenance.Update(ctx, id, domain.MaintenancePatch{Status: &status})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "maintenance.started", "maintenance_event", id, actorID, nil)
	return updated, nil
}

// CompleteMaintenance logs the technician's resolution and re-derives the
// aircraft status, returning it to available when no other claim holds it.
func (s *Service) CompleteMaintenance(ctx context.Context, id, actorID string) (*domain.MaintenanceEvent, error) {
	ev, err := s.Stores.Maintenance.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Status == "completed" {
		return nil, fmt.Errorf("maintenance %s already completed", id)
	}
	status := "completed"
	resolved := s.now().UTC().Format(time.RFC3339)
	updated, err := s.Stores.Maintenance.Update(ctx, id, domain.MaintenancePatch{Status: &status, ResolvedAt: &resolved})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "maintenance.completed", "maintenance_event", id, actorID, events.EventPayload{
		"aircraft_id": ev.AircraftID,
	})
	if _, err := s.SyncStatus(ctx, ev.AircraftID, actorID, nil); err != nil {
		return updated, fmt.Errorf("maintenance completed but aircraft %s not released: %w", ev.AircraftID, err)
	}
	return updated, nil
}
