package ops

import (
	"context"
	"time"

	"flightdeck/internal/domain"
	"flightdeck/internal/remote"
)

// ReportingSink receives a secondary aggregate record when a mission marked
// as belonging to a seasonal reporting program completes. It is an external
// collaborator: its failure is logged and never blocks completion.
type ReportingSink interface {
	MissionCompleted(ctx context.Context, m *domain.Mission, log *domain.FlightLog) error
}

// RemoteReporting writes the aggregate into a dedicated collection on the
// backend.
type RemoteReporting struct {
	Remote     remote.Adapter
	Collection string
	Now        func() time.Time
}

func NewRemoteReporting(r remote.Adapter) *RemoteReporting {
	return &RemoteReporting{Remote: r, Collection: "seasonal_reports", Now: time.Now}
}

func (r *RemoteReporting) MissionCompleted(ctx context.Context, m *domain.Mission, log *domain.FlightLog) error {
	record := map[string]any{
		"mission_id": m.ID,
		"name":       m.Name,
		"kind":       m.Kind,
		"started_at": m.StartedAt,
		"ended_at":   m.EndedAt,
		"created_at": r.Now().UTC().Format(time.RFC3339),
	}
	if log != nil {
		record["hours"] = log.Hours
		record["aircraft_id"] = log.AircraftID
	}
	_, err := r.Remote.Create(ctx, r.Collection, record)
	return err
}
