package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flightdeck/internal/domain"
	"flightdeck/internal/events"
	"flightdeck/internal/fleet"
	"flightdeck/internal/store"
)

// DayCreateOptions are parameters for opening one calendar day of a
// multi-day mission.
type DayCreateOptions struct {
	MissionID string
	Date      string
	PilotID   string
	Notes     string
	ActorID   string
}

// CreateDay opens a day roster under a multi-day mission. A responsible
// pilot is required.
func (s *Service) CreateDay(ctx context.Context, opts DayCreateOptions) (*domain.MissionDay, error) {
	if opts.PilotID == "" {
		return nil, errors.New("responsible pilot is required")
	}
	if opts.Date == "" {
		return nil, errors.New("date is required")
	}
	m, err := s.Stores.Missions.Get(ctx, opts.MissionID)
	if err != nil {
		return nil, err
	}
	if m.Status != "active" {
		return nil, fmt.Errorf("mission %s is %s, not active", m.ID, m.Status)
	}
	if !m.MultiDay {
		return nil, fmt.Errorf("mission %s is not multi-day", m.ID)
	}
	day := &domain.MissionDay{
		MissionID: opts.MissionID,
		Date:      opts.Date,
		Status:    "open",
		PilotID:   opts.PilotID,
		Notes:     opts.Notes,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	created, err := s.Stores.MissionDays.Create(ctx, day)
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "mission_day.created", "mission_day", created.ID, opts.ActorID, events.EventPayload{
		"mission_id": opts.MissionID,
		"date":       opts.Date,
	})
	return created, nil
}

// AllocateAircraft links an aircraft to an open day and drives it into
// operation. Allocations are pure additions; no capacity limit is enforced.
func (s *Service) AllocateAircraft(ctx context.Context, dayID, aircraftID, actorID string) (*domain.MissionDayAircraftLink, error) {
	day, err := s.Stores.MissionDays.Get(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day.Status != "open" {
		return nil, fmt.Errorf("day %s is closed", dayID)
	}
	if _, err := s.Stores.Aircraft.Get(ctx, aircraftID); err != nil {
		return nil, err
	}
	link := &domain.MissionDayAircraftLink{
		DayID:      dayID,
		AircraftID: aircraftID,
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	created, err := s.Stores.DayAircraft.Create(ctx, link)
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "mission_day.aircraft_allocated", "mission_day", dayID, actorID, events.EventPayload{
		"aircraft_id": aircraftID,
	})
	if _, err := s.Fleet.SyncStatus(ctx, aircraftID, actorID, nil); err != nil {
		return created, fmt.Errorf("aircraft %s allocated but not marked in operation: %w", aircraftID, err)
	}
	return created, nil
}

// AllocatePersonnel links a pilot to an open day in a given role.
func (s *Service) AllocatePersonnel(ctx context.Context, dayID, pilotID, role, actorID string) (*domain.MissionDayPersonnelLink, error) {
	if role != "pilot_in_command" && role != "observer" {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	day, err := s.Stores.MissionDays.Get(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day.Status != "open" {
		return nil, fmt.Errorf("day %s is closed", dayID)
	}
	if _, err := s.Stores.Pilots.Get(ctx, pilotID); err != nil {
		return nil, err
	}
	link := &domain.MissionDayPersonnelLink{
		DayID:     dayID,
		PilotID:   pilotID,
		Role:      role,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	created, err := s.Stores.DayPersonnel.Create(ctx, link)
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "mission_day.personnel_allocated", "mission_day", dayID, actorID, events.EventPayload{
		"pilot_id": pilotID,
		"role":     role,
	})
	return created, nil
}

// EditDayNotes updates a day's narrative only. Saving notes deliberately does
// not release aircraft: "save notes" and "close day" are two separate
// operator actions so that resources still in the field are never released
// by accident.
func (s *Service) EditDayNotes(ctx context.Context, dayID, notes, actorID string) (*domain.MissionDay, error) {
	day, err := s.Stores.MissionDays.Get(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day.Status != "open" {
		return nil, fmt.Errorf("day %s is closed", dayID)
	}
	day, err = s.Stores.MissionDays.Update(ctx, dayID, domain.MissionDayPatch{Notes: &notes})
	if err != nil {
		return nil, err
	}
	_ = s.Events.Append(ctx, "mission_day.notes_updated", "mission_day", dayID, actorID, nil)
	return day, nil
}

// DayCloseResult itemizes what a closure attempt did per aircraft.
type DayCloseResult struct {
	Day      *domain.MissionDay `json:"day"`
	Released []string           `json:"released,omitempty"`
	Failures []ReleaseFailure   `json:"failures,omitempty"`
	Closed   bool               `json:"closed"`
}

// CloseDay releases every aircraft linked to the day, sequentially, then
// flips the day closed. Releases are not atomic: a partial failure leaves
// some aircraft released and others not, which is why the result itemizes
// both lists. A permission failure halts the closure immediately; any other
// failure leaves the day open unless force is set, in which case the day
// closes with the failing aircraft explicitly reported as unreleased.
func (s *Service) CloseDay(ctx context.Context, dayID, actorID string, force bool) (DayCloseResult, error) {
	var res DayCloseResult
	day, err := s.Stores.MissionDays.Get(ctx, dayID)
	if err != nil {
		return res, err
	}
	res.Day = day
	if day.Status != "open" {
		return res, fmt.Errorf("day %s already closed", dayID)
	}
	links, err := s.Stores.DayAircraft.FilterFunc(ctx, func(l *domain.MissionDayAircraftLink) bool {
		return l.DayID == dayID
	})
	if err != nil {
		return res, err
	}
	excluding := &fleet.Claim{Kind: "mission_day", RefID: dayID}
	for _, l := range links {
		if _, err := s.Fleet.SyncStatus(ctx, l.AircraftID, actorID, excluding); err != nil {
			res.Failures = append(res.Failures, ReleaseFailure{AircraftID: l.AircraftID, Error: err.Error(), Err: err})
			if errors.Is(err, store.ErrPermissionDenied) && !force {
				// Hard permission failure: halt the whole closure, leave the
				// day open, and let the operator remediate.
				return res, fmt.Errorf("aircraft %s: %w", l.AircraftID, err)
			}
			continue
		}
		res.Released = append(res.Released, l.AircraftID)
	}
	if len(res.Failures) > 0 && !force {
		return res, fmt.Errorf("%d of %d aircraft not released: %w", len(res.Failures), len(links), ErrReleaseIncomplete)
	}
	status := "closed"
	closed, err := s.Stores.MissionDays.Update(ctx, dayID, domain.MissionDayPatch{Status: &status})
	if err != nil {
		return res, err
	}
	res.Day = closed
	res.Closed = true
	_ = s.Events.Append(ctx, "mission_day.closed", "mission_day", dayID, actorID, events.EventPayload{
		"released": len(res.Released),
		"failed":   len(res.Failures),
		"forced":   force && len(res.Failures) > 0,
	})
	return res, nil
}

// DeleteDay removes a day and cascades its resource links. Aircraft status is
// untouched: releasing resources is an explicit operator action, not a side
// effect of deleting the roster.
func (s *Service) DeleteDay(ctx context.Context, dayID, actorID string) error {
	if _, err := s.Stores.MissionDays.Get(ctx, dayID); err != nil {
		return err
	}
	links, err := s.Stores.DayAircraft.FilterFunc(ctx, func(l *domain.MissionDayAircraftLink) bool {
		return l.DayID == dayID
	})
	if err != nil {
		return err
	}
	for _, l := range links {
		if err := s.Stores.DayAircraft.Delete(ctx, l.ID); err != nil {
			return fmt.Errorf("delete aircraft link %s: %w", l.ID, err)
		}
	}
	crew, err := s.Stores.DayPersonnel.FilterFunc(ctx, func(l *domain.MissionDayPersonnelLink) bool {
		return l.DayID == dayID
	})
	if err != nil {
		return err
	}
	for _, l := range crew {
		if err := s.Stores.DayPersonnel.Delete(ctx, l.ID); err != nil {
			return fmt.Errorf("delete personnel link %s: %w", l.ID, err)
		}
	}
	if err := s.Stores.MissionDays.Delete(ctx, dayID); err != nil {
		return err
	}
	_ = s.Events.Append(ctx, "mission_day.deleted", "mission_day", dayID, actorID, nil)
	return nil
}
