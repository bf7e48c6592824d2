package domain

// Identity and StampIdentity let the entity store handle any record type
// uniformly. StampIdentity is only called for records created while the remote
// is unreachable; an identifier assigned there is permanent, even if the
// remote would have minted its own.

func (m *Mission) Identity() string { return m.ID }
func (m *Mission) StampIdentity(id, ts string) {
	if m.ID == "" {
		m.ID = id
	}
	if m.CreatedAt == "" {
		m.CreatedAt = ts
	}
}

func (a *Aircraft) Identity() string { return a.ID }
func (a *Aircraft) StampIdentity(id, ts string) {
	if a.ID == "" {
		a.ID = id
	}
	if a.CreatedAt == "" {
		a.CreatedAt = ts
	}
}

func (p *Pilot) Identity() string { return p.ID }
func (p *Pilot) StampIdentity(id, ts string) {
	if p.ID == "" {
		p.ID = id
	}
	if p.CreatedAt == "" {
		p.CreatedAt = ts
	}
}

func (e *MaintenanceEvent) Identity() string { return e.ID }
func (e *MaintenanceEvent) StampIdentity(id, ts string) {
	if e.ID == "" {
		e.ID = id
	}
	if e.CreatedAt == "" {
		e.CreatedAt = ts
	}
}

func (d *MissionDay) Identity() string { return d.ID }
func (d *MissionDay) StampIdentity(id, ts string) {
	if d.ID == "" {
		d.ID = id
	}
	if d.CreatedAt == "" {
		d.CreatedAt = ts
	}
}

func (l *MissionDayAircraftLink) Identity() string { return l.ID }
func (l *MissionDayAircraftLink) StampIdentity(id, ts string) {
	if l.ID == "" {
		l.ID = id
	}
	if l.CreatedAt == "" {
		l.CreatedAt = ts
	}
}

func (l *MissionDayPersonnelLink) Identity() string { return l.ID }
func (l *MissionDayPersonnelLink) StampIdentity(id, ts string) {
	if l.ID == "" {
		l.ID = id
	}
	if l.CreatedAt == "" {
		l.CreatedAt = ts
	}
}

func (n *ConflictNotice) Identity() string { return n.ID }
func (n *ConflictNotice) StampIdentity(id, ts string) {
	if n.ID == "" {
		n.ID = id
	}
	if n.CreatedAt == "" {
		n.CreatedAt = ts
	}
}

func (f *FlightLog) Identity() string { return f.ID }
func (f *FlightLog) StampIdentity(id, ts string) {
	if f.ID == "" {
		f.ID = id
	}
	if f.CreatedAt == "" {
		f.CreatedAt = ts
	}
}
