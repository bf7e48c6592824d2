package domain

// Patch types enumerate the mutable fields of each entity. Fields returns only
// the fields that were set, keyed by wire name, which is what the remote patch
// endpoint and the offline shallow-merge both consume.

type MissionPatch struct {
	Name        *string
	Status      *string
	Latitude    *float64
	Longitude   *float64
	Radius      *float64
	Altitude    *float64
	EndedAt     *string
	Description *string
}

func (p MissionPatch) Fields() map[string]any {
	f := map[string]any{}
	setString(f, "name", p.Name)
	setString(f, "status", p.Status)
	setFloat(f, "latitude", p.Latitude)
	setFloat(f, "longitude", p.Longitude)
	setFloat(f, "radius", p.Radius)
	setFloat(f, "altitude", p.Altitude)
	setString(f, "ended_at", p.EndedAt)
	setString(f, "description", p.Description)
	return f
}

type AircraftPatch struct {
	Callsign    *string
	Model       *string
	Status      *string
	FlightHours *float64
}

func (p AircraftPatch) Fields() map[string]any {
	f := map[string]any{}
	setString(f, "callsign", p.Callsign)
	setString(f, "model", p.Model)
	setString(f, "status", p.Status)
	setFloat(f, "flight_hours", p.FlightHours)
	return f
}

type PilotPatch struct {
	Name    *string
	License *string
	Phone   *string
}

func (p PilotPatch) Fields() map[string]any {
	f := map[string]any{}
	setString(f, "name", p.Name)
	setString(f, "license", p.License)
	setString(f, "phone", p.Phone)
	return f
}

type MaintenancePatch struct {
	Status      *string
	Description *string
	LogURL      *string
	ResolvedAt  *string
}

func (p MaintenancePatch) Fields() map[string]any {
	f := map[string]any{}
	setString(f, "status", p.Status)
	setString(f, "description", p.Description)
	setString(f, "log_url", p.LogURL)
	setString(f, "resolved_at", p.ResolvedAt)
	return f
}

type MissionDayPatch struct {
	Status  *string
	Notes   *string
	PilotID *string
}

func (p MissionDayPatch) Fields() map[string]any {
	f := map[string]any{}
	setString(f, "status", p.Status)
	setString(f, "notes", p.Notes)
	setString(f, "pilot_id", p.PilotID)
	return f
}

type ConflictNoticePatch struct {
	Acknowledged *bool
}

func (p ConflictNoticePatch) Fields() map[string]any {
	f := map[string]any{}
	if p.Acknowledged != nil {
		f["acknowledged"] = *p.Acknowledged
	}
	return f
}

func setString(f map[string]any, key string, v *string) {
	if v != nil {
		f[key] = *v
	}
}

func setFloat(f map[string]any, key string, v *float64) {
	if v != nil {
		f[key] = *v
	}
}

func StringPtr(v string) *string  { return &v }
func FloatPtr(v float64) *float64 { return &v }
func BoolPtr(v bool) *bool        { return &v }
