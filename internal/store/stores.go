package store

import (
	"context"
	"time"

	"flightdeck/internal/domain"
	"flightdeck/internal/mirror"
	"flightdeck/internal/remote"
)

// Stores bundles one typed store per collection. Constructed once per process
// and passed by reference to every component that needs entity access; there
// is no package-level cache.
type Stores struct {
	Missions        *Store[*domain.Mission]
	Aircraft        *Store[*domain.Aircraft]
	Pilots          *Store[*domain.Pilot]
	Maintenance     *Store[*domain.MaintenanceEvent]
	MissionDays     *Store[*domain.MissionDay]
	DayAircraft     *Store[*domain.MissionDayAircraftLink]
	DayPersonnel    *Store[*domain.MissionDayPersonnelLink]
	ConflictNotices *Store[*domain.ConflictNotice]
	FlightLogs      *Store[*domain.FlightLog]

	Mirror mirror.Mirror
	Remote remote.Adapter
}

// NewStores wires every collection against the same adapter and mirror.
// A nil adapter runs the whole system mirror-only.
func NewStores(r remote.Adapter, m mirror.Mirror, timeout time.Duration) *Stores {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Stores{
		Missions:        New[*domain.Mission](domain.CollectionMissions, r, m),
		Aircraft:        New[*domain.Aircraft](domain.CollectionAircraft, r, m),
		Pilots:          New[*domain.Pilot](domain.CollectionPilots, r, m),
		Maintenance:     New[*domain.MaintenanceEvent](domain.CollectionMaintenance, r, m),
		MissionDays:     New[*domain.MissionDay](domain.CollectionMissionDays, r, m),
		DayAircraft:     New[*domain.MissionDayAircraftLink](domain.CollectionDayAircraftLinks, r, m),
		DayPersonnel:    New[*domain.MissionDayPersonnelLink](domain.CollectionDayPersonnel, r, m),
		ConflictNotices: New[*domain.ConflictNotice](domain.CollectionConflictNotices, r, m),
		FlightLogs:      New[*domain.FlightLog](domain.CollectionFlightLogs, r, m),
		Mirror:          m,
		Remote:          r,
	}
	for _, st := range []interface{ setTimeout(time.Duration) }{
		s.Missions, s.Aircraft, s.Pilots, s.Maintenance, s.MissionDays,
		s.DayAircraft, s.DayPersonnel, s.ConflictNotices, s.FlightLogs,
	} {
		st.setTimeout(timeout)
	}
	return s
}

func (s *Store[T]) setTimeout(d time.Duration) { s.Timeout = d }

// Refresher is the slice of a typed store the background refresh loop needs.
type Refresher interface {
	Refresh(ctx context.Context) error
	CollectionName() string
}

// Refresh re-fetches the collection from the remote and writes it through the
// mirror. Unlike List it does not fall back: the caller needs to know whether
// the remote actually answered.
func (s *Store[T]) Refresh(ctx context.Context) error {
	if s.Remote == nil {
		return nil
	}
	_, err := race(ctx, s.timeout(), func(ctx context.Context) ([]T, error) {
		raws, err := s.Remote.List(ctx, s.Collection, "")
		if err != nil {
			return nil, err
		}
		recs, err := decodeRaws[T](raws)
		if err != nil {
			return nil, err
		}
		return recs, s.replaceMirror(ctx, recs)
	})
	return err
}

func (s *Store[T]) CollectionName() string { return s.Collection }

// All returns every typed store as a Refresher, in a stable order.
func (s *Stores) All() []Refresher {
	return []Refresher{
		s.Missions, s.Aircraft, s.Pilots, s.Maintenance, s.MissionDays,
		s.DayAircraft, s.DayPersonnel, s.ConflictNotices, s.FlightLogs,
	}
}
