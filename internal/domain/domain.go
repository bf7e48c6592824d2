package domain

// Collection names as known to the remote backend and the local mirror.
const (
	CollectionMissions         = "missions"
	CollectionAircraft         = "aircraft"
	CollectionPilots           = "pilots"
	CollectionMaintenance      = "maintenance_events"
	CollectionMissionDays      = "mission_days"
	CollectionDayAircraftLinks = "mission_day_aircraft"
	CollectionDayPersonnel     = "mission_day_personnel"
	CollectionConflictNotices  = "conflict_notices"
	CollectionFlightLogs       = "flight_logs"
)

type Mission struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind,omitempty"`
	Status      string  `json:"status" enum:"active,completed,cancelled"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Radius      float64 `json:"radius"`
	Altitude    float64 `json:"altitude,omitempty"`
	AircraftID  string  `json:"aircraft_id,omitempty"`
	PilotID     string  `json:"pilot_id,omitempty"`
	MultiDay    bool    `json:"multi_day,omitempty"`
	Seasonal    bool    `json:"seasonal,omitempty"`
	StartedAt   string  `json:"started_at" format:"date-time"`
	EndedAt     string  `json:"ended_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	Description string  `json:"description,omitempty"`
}

type Aircraft struct {
	ID          string  `json:"id"`
	Callsign    string  `json:"callsign"`
	Model       string  `json:"model,omitempty"`
	Status      string  `json:"status" enum:"available,in_operation,maintenance"`
	FlightHours float64 `json:"flight_hours"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Pilot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	License   string `json:"license,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MaintenanceEvent struct {
	ID          string `json:"id"`
	AircraftID  string `json:"aircraft_id"`
	Kind        string `json:"kind" enum:"preventive,corrective"`
	Status      string `json:"status" enum:"scheduled,in_progress,completed"`
	Grounding   bool   `json:"grounding,omitempty"`
	Description string `json:"description,omitempty"`
	LogURL      string `json:"log_url,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	ResolvedAt  string `json:"resolved_at,omitempty" format:"date-time"`
}

type MissionDay struct {
	ID        string `json:"id"`
	MissionID string `json:"mission_id"`
	Date      string `json:"date" format:"date"`
	Status    string `json:"status" enum:"open,closed"`
	PilotID   string `json:"pilot_id"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MissionDayAircraftLink struct {
	ID         string `json:"id"`
	DayID      string `json:"day_id"`
	AircraftID string `json:"aircraft_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type MissionDayPersonnelLink struct {
	ID        string `json:"id"`
	DayID     string `json:"day_id"`
	PilotID   string `json:"pilot_id"`
	Role      string `json:"role" enum:"pilot_in_command,observer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ConflictNotice struct {
	ID           string `json:"id"`
	PilotID      string `json:"pilot_id"`
	MissionID    string `json:"mission_id"`
	Message      string `json:"message"`
	Acknowledged bool   `json:"acknowledged"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type FlightLog struct {
	ID         string  `json:"id"`
	MissionID  string  `json:"mission_id"`
	AircraftID string  `json:"aircraft_id"`
	PilotID    string  `json:"pilot_id,omitempty"`
	Hours      float64 `json:"hours"`
	StartedAt  string  `json:"started_at" format:"date-time"`
	EndedAt    string  `json:"ended_at" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
