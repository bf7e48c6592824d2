// Package fleet owns the aircraft availability lifecycle. Status is never
// assigned directly by callers: it is derived from the set of active claims
// on the aircraft, with maintenance outranking operation. Releasing an
// aircraft means dropping a claim and re-deriving.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"flightdeck/internal/domain"
	"flightdeck/internal/events"
	"flightdeck/internal/store"
)

const (
	StatusAvailable   = "available"
	StatusInOperation = "in_operation"
	StatusMaintenance = "maintenance"
)

// Claim is one reason an aircraft is not available.
type Claim struct {
	Kind  string `json:"kind" enum:"mission,mission_day,maintenance"`
	RefID string `json:"ref_id"`
}

type Service struct {
	Stores *store.Stores
	Events events.Writer
	Now    func() time.Time
}

func New(stores *store.Stores, ev events.Writer) *Service {
	return &Service{Stores: stores, Events: ev, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DeriveStatus collapses a claim set into an aircraft status. Maintenance
// outranks operation; an empty set means available.
func DeriveStatus(claims []Claim) string {
	status := StatusAvailable
	for _, c := range claims {
		if c.Kind == "maintenance" {
			return StatusMaintenance
		}
		status = StatusInOperation
	}
	return status
}

// Claims enumerates the active claims on an aircraft: active missions that
// own it directly, open mission days it is linked to, and grounding
// maintenance events not yet completed. excluding drops the claim that is in
// the middle of being released.
func (s *Service) Claims(ctx context.Context, aircraftID string, excluding *Claim) ([]Claim, error) {
	var claims []Claim

	missions, err := s.Stores.Missions.FilterFunc(ctx, func(m *domain.Mission) bool {
		return m.Status == "active" && m.AircraftID == aircraftID
	})
	if err != nil {
		return nil, fmt.Errorf("list owning missions: %w", err)
	}
	for _, m := range missions {
		claims = append(claims, Claim{Kind: "mission", RefID: m.ID})
	}

	links, err := s.Stores.DayAircraft.FilterFunc(ctx, func(l *domain.MissionDayAircraftLink) bool {
		return l.AircraftID == aircraftID
	})
	if err != nil {
		return nil, fmt.Errorf("list day links: %w", err)
	}
	for _, l := range links {
		day, err := s.Stores.MissionDays.Get(ctx, l.DayID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load day %s: %w", l.DayID, err)
		}
		if day.Status == "open" {
			claims = append(claims, Claim{Kind: "mission_day", RefID: day.ID})
		}
	}

	maint, err := s.Stores.Maintenance.FilterFunc(ctx, func(e *domain.MaintenanceEvent) bool {
		return e.AircraftID == aircraftID && e.Status != "completed" && e.Grounding
	})
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	for _, e := range maint {
		claims = append(claims, Claim{Kind: "maintenance", RefID: e.ID})
	}

	if excluding != nil {
		kept := claims[:0]
		for _, c := range claims {
			if c.Kind == excluding.Kind && c.RefID == excluding.RefID {
				continue
			}
			kept = append(kept, c)
		}
		claims = kept
	}
	return claims, nil
}

// SyncStatus recomputes the aircraft status from its claim set and persists
// it. A PermissionDenied from the store is surfaced untouched so the calling
// workflow can halt and present remediation.
func (s *Service) SyncStatus(ctx context.Context, aircraftID, actorID string, excluding *Claim) (*domain.Aircraft, error) {
	claims, err := s.Claims(ctx, aircraftID, excluding)
	if err != nil {
		return nil, err
	}
	status := DeriveStatus(claims)
	ac, err := s.Stores.Aircraft.Update(ctx, aircraftID, domain.AircraftPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "aircraft.status.synced", "aircraft", aircraftID, actorID, events.EventPayload{
		"status": status,
		"claims": claims,
	})
	return ac, nil
}

// AddFlightHours accumulates completed flight time, rounded to one decimal.
func (s *Service) AddFlightHours(ctx context.Context, aircraftID string, hours float64, actorID string) (*domain.Aircraft, error) {
	ac, err := s.Stores.Aircraft.Get(ctx, aircraftID)
	if err != nil {
		return nil, err
	}
	total := ac.FlightHours + RoundHours(hours)
	updated, err := s.Stores.Aircraft.Update(ctx, aircraftID, domain.AircraftPatch{FlightHours: &total})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "aircraft.hours.accumulated", "aircraft", aircraftID, actorID, events.EventPayload{
		"added": RoundHours(hours),
		"total": total,
	})
	return updated, nil
}

// RoundHours clamps a duration in hours to one decimal place.
func RoundHours(h float64) float64 {
	if h < 0 {
		h = 0
	}
	return math.Round(h*10) / 10
}
