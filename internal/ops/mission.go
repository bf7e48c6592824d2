// Package ops drives mission and mission-day lifecycles on top of the entity
// store. Multi-step workflows run sequentially and are not atomic; partial
// failures are returned as itemized results, and the operator decides whether
// to force the parent transition.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flightdeck/internal/airspace"
	"flightdeck/internal/domain"
	"flightdeck/internal/events"
	"flightdeck/internal/fleet"
	"flightdeck/internal/store"
)

var (
	// ErrConflictsUnacknowledged means the detector found overlapping active
	// missions and the operator has not yet confirmed creation.
	ErrConflictsUnacknowledged = errors.New("airspace conflicts require acknowledgment")
	// ErrReleaseIncomplete means one or more aircraft failed to release and
	// the parent transition was not forced.
	ErrReleaseIncomplete = errors.New("aircraft release incomplete")
)

type Service struct {
	Stores    *store.Stores
	Fleet     *fleet.Service
	Events    events.Writer
	Reporting ReportingSink
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(stores *store.Stores, fl *fleet.Service, ev events.Writer) *Service {
	return &Service{Stores: stores, Fleet: fl, Events: ev, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// MissionCreateOptions are parameters for opening a mission.
type MissionCreateOptions struct {
	Name                 string
	Kind                 string
	Latitude             float64
	Longitude            float64
	Radius               float64
	Altitude             float64
	AircraftID           string
	PilotID              string
	MultiDay             bool
	Seasonal             bool
	Description          string
	AcknowledgeConflicts bool
	ActorID              string
}

// CreateMission opens a mission. Spatial conflicts against other active
// missions are advisory: creation proceeds only once the operator
// acknowledges them, and each conflicting mission's responsible pilot gets a
// ConflictNotice for later acknowledgment of their own.
func (s *Service) CreateMission(ctx context.Context, opts MissionCreateOptions) (*domain.Mission, []*domain.Mission, error) {
	if opts.Name == "" {
		return nil, nil, errors.New("name is required")
	}
	if opts.Radius <= 0 {
		return nil, nil, errors.New("radius must be positive")
	}
	active, err := s.Stores.Missions.FilterFunc(ctx, func(m *domain.Mission) bool {
		return m.Status == "active"
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list active missions: %w", err)
	}
	conflicts := airspace.Conflicts(airspace.Candidate{
		Latitude:  opts.Latitude,
		Longitude: opts.Longitude,
		Radius:    opts.Radius,
	}, active)
	if len(conflicts) > 0 && !opts.AcknowledgeConflicts {
		return nil, conflicts, ErrConflictsUnacknowledged
	}
	now := s.now().UTC().Format(time.RFC3339)
	m := &domain.Mission{
		Name:        opts.Name,
		Kind:        opts.Kind,
		Status:      "active",
		Latitude:    opts.Latitude,
		Longitude:   opts.Longitude,
		Radius:      opts.Radius,
		Altitude:    opts.Altitude,
		AircraftID:  opts.AircraftID,
		PilotID:     opts.PilotID,
		MultiDay:    opts.MultiDay,
		Seasonal:    opts.Seasonal,
		StartedAt:   now,
		CreatedAt:   now,
		Description: opts.Description,
	}
	created, err := s.Stores.Missions.Create(ctx, m)
	if err != nil {
		return nil, conflicts, err
	}
	_ = s.Events.Append(ctx, "mission.created", "mission", created.ID, opts.ActorID, events.EventPayload{
		"name":      created.Name,
		"conflicts": len(conflicts),
	})
	for _, other := range conflicts {
		if other.PilotID == "" {
			continue
		}
		notice := &domain.ConflictNotice{
			PilotID:   other.PilotID,
			MissionID: other.ID,
			Message: fmt.Sprintf("mission %q overlaps the footprint of your active mission %q",
				created.Name, other.Name),
			CreatedAt: now,
		}
		if _, err := s.Stores.ConflictNotices.Create(ctx, notice); err != nil {
			s.log().Warn("conflict notice not created", "mission_id", other.ID, "pilot_id", other.PilotID, "error", err)
		}
	}
	if created.AircraftID != "" {
		if _, err := s.Fleet.SyncStatus(ctx, created.AircraftID, opts.ActorID, nil); err != nil {
			return created, conflicts, fmt.Errorf("mission created but aircraft %s not marked in operation: %w", created.AircraftID, err)
		}
	}
	return created, conflicts, nil
}

// CompletionResult itemizes what mission completion did.
type CompletionResult struct {
	Mission   *domain.Mission   `json:"mission"`
	Aircraft  *domain.Aircraft  `json:"aircraft,omitempty"`
	FlightLog *domain.FlightLog `json:"flight_log,omitempty"`
	Failures  []ReleaseFailure  `json:"failures,omitempty"`
}

// ReleaseFailure reports one aircraft that did not release.
type ReleaseFailure struct {
	AircraftID string `json:"aircraft_id"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// CompleteMission closes out an active mission: the owning aircraft is
// released and credited with the flight time, a FlightLog is appended, and
// the seasonal reporting collaborator is notified. A failed release halts the
// completion before any state is committed, leaving the mission active so the
// operator can retry after remediation; with force set the mission completes
// and the aircraft is reported as left inconsistent.
func (s *Service) CompleteMission(ctx context.Context, id, actorID string, force bool) (CompletionResult, error) {
	var res CompletionResult
	m, err := s.Stores.Missions.Get(ctx, id)
	if err != nil {
		return res, err
	}
	if m.Status != "active" {
		return res, fmt.Errorf("mission %s is %s, not active", id, m.Status)
	}
	now := s.now().UTC()
	ended := now.Format(time.RFC3339)
	hours := fleet.RoundHours(missionDuration(m, now).Hours())

	// Release first. The terminal status, the hour credit and the flight log
	// commit only once the aircraft is out, or the operator forces.
	if m.AircraftID != "" {
		ac, err := s.Fleet.SyncStatus(ctx, m.AircraftID, actorID, &fleet.Claim{Kind: "mission", RefID: id})
		if err != nil {
			res.Failures = append(res.Failures, ReleaseFailure{AircraftID: m.AircraftID, Error: err.Error(), Err: err})
			if !force {
				return res, fmt.Errorf("aircraft %s: %w", m.AircraftID, errors.Join(ErrReleaseIncomplete, err))
			}
		} else {
			res.Aircraft = ac
		}
	}

	status := "completed"
	updated, err := s.Stores.Missions.Update(ctx, id, domain.MissionPatch{Status: &status, EndedAt: &ended})
	if err != nil {
		return res, err
	}
	res.Mission = updated
	_ = s.Events.Append(ctx, "mission.completed", "mission", id, actorID, nil)

	if updated.AircraftID != "" {
		if ac, err := s.Fleet.AddFlightHours(ctx, updated.AircraftID, hours, actorID); err != nil {
			s.log().Warn("flight hours not accumulated", "aircraft_id", updated.AircraftID, "error", err)
		} else {
			res.Aircraft = ac
		}
	}

	flightLog := &domain.FlightLog{
		MissionID:  id,
		AircraftID: updated.AircraftID,
		PilotID:    updated.PilotID,
		Hours:      hours,
		StartedAt:  updated.StartedAt,
		EndedAt:    ended,
		CreatedAt:  ended,
	}
	if created, err := s.Stores.FlightLogs.Create(ctx, flightLog); err != nil {
		s.log().Warn("flight log not appended", "mission_id", id, "error", err)
	} else {
		res.FlightLog = created
	}

	if updated.Seasonal && s.Reporting != nil {
		// External collaborator write; its failure never blocks completion.
		if err := s.Reporting.MissionCompleted(ctx, updated, res.FlightLog); err != nil {
			s.log().Warn("seasonal report not recorded", "mission_id", id, "error", err)
		}
	}
	return res, nil
}

// CancelMission terminates an active mission without crediting flight time.
// The owning aircraft is released the same way completion releases it.
func (s *Service) CancelMission(ctx context.Context, id, actorID string, force bool) (CompletionResult, error) {
	var res CompletionResult
	m, err := s.Stores.Missions.Get(ctx, id)
	if err != nil {
		return res, err
	}
	if m.Status != "active" {
		return res, fmt.Errorf("mission %s is %s, not active", id, m.Status)
	}
	if m.AircraftID != "" {
		ac, err := s.Fleet.SyncStatus(ctx, m.AircraftID, actorID, &fleet.Claim{Kind: "mission", RefID: id})
		if err != nil {
			res.Failures = append(res.Failures, ReleaseFailure{AircraftID: m.AircraftID, Error: err.Error(), Err: err})
			if !force {
				return res, fmt.Errorf("aircraft %s: %w", m.AircraftID, errors.Join(ErrReleaseIncomplete, err))
			}
		} else {
			res.Aircraft = ac
		}
	}
	ended := s.now().UTC().Format(time.RFC3339)
	status := "cancelled"
	updated, err := s.Stores.Missions.Update(ctx, id, domain.MissionPatch{Status: &status, EndedAt: &ended})
	if err != nil {
		return res, err
	}
	res.Mission = updated
	_ = s.Events.Append(ctx, "mission.cancelled", "mission", id, actorID, nil)
	return res, nil
}

// ConflictCheck is a footprint to test against active missions. MissionID,
// when set, excludes that mission's own record so re-checking an existing
// mission does not flag it against itself.
type ConflictCheck struct {
	MissionID string
	Latitude  float64
	Longitude float64
	Radius    float64
}

// CheckConflicts runs the advisory detector without creating anything.
func (s *Service) CheckConflicts(ctx context.Context, check ConflictCheck) ([]*domain.Mission, error) {
	active, err := s.Stores.Missions.FilterFunc(ctx, func(m *domain.Mission) bool {
		return m.Status == "active"
	})
	if err != nil {
		return nil, fmt.Errorf("list active missions: %w", err)
	}
	return airspace.Conflicts(airspace.Candidate{
		ID:        check.MissionID,
		Latitude:  check.Latitude,
		Longitude: check.Longitude,
		Radius:    check.Radius,
	}, active), nil
}

// AcknowledgeNotice marks a conflict notice as seen by its pilot.
func (s *Service) AcknowledgeNotice(ctx context.Context, id, actorID string) (*domain.ConflictNotice, error) {
	ack := true
	n, err := s.Stores.ConflictNotices.Update(ctx, id, domain.ConflictNoticePatch{Acknowledged: &ack})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "conflict_notice.acknowledged", "conflict_notice", id, actorID, nil)
	return n, nil
}

func missionDuration(m *domain.Mission, endedAt time.Time) time.Duration {
	started, err := time.Parse(time.RFC3339, m.StartedAt)
	if err != nil {
		return 0
	}
	d := endedAt.Sub(started)
	if d < 0 {
		return 0
	}
	return d
}
