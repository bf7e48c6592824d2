package fleet_test

import (
	"context"
	"testing"
	"time"

	"flightdeck/internal/db"
	"flightdeck/internal/domain"
	"flightdeck/internal/events"
	"flightdeck/internal/fleet"
	"flightdeck/internal/migrate"
	"flightdeck/internal/mirror"
	"flightdeck/internal/store"
)

type testEnv struct {
	Stores *store.Stores
	Fleet  *fleet.Service
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stores := store.NewStores(nil, mirror.New(conn), 0)
	fl := fleet.New(stores, events.Writer{DB: conn})
	fl.Now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Stores: stores, Fleet: fl, Ctx: context.Background()}
}

func (e testEnv) seedAircraft(t *testing.T) *domain.Aircraft {
	t.Helper()
	ac, err := e.Stores.Aircraft.Create(e.Ctx, &domain.Aircraft{Callsign: "HAWK-1", Status: fleet.StatusAvailable})
	if err != nil {
		t.Fatalf("seed aircraft: %v", err)
	}
	return ac
}

func TestDeriveStatusPrecedence(t *testing.T) {
	cases := []struct {
		claims []fleet.Claim
		want   string
	}{
		{nil, fleet.StatusAvailable},
		{[]fleet.Claim{{Kind: "mission", RefID: "m-1"}}, fleet.StatusInOperation},
		{[]fleet.Claim{{Kind: "mission_day", RefID: "d-1"}}, fleet.StatusInOperation},
		{[]fleet.Claim{{Kind: "mission", RefID: "m-1"}, {Kind: "maintenance", RefID: "e-1"}}, fleet.StatusMaintenance},
		{[]fleet.Claim{{Kind: "maintenance", RefID: "e-1"}}, fleet.StatusMaintenance},
	}
	for _, c := range cases {
		if got := fleet.DeriveStatus(c.claims); got != c.want {
			t.Errorf("DeriveStatus(%+v) = %q, want %q", c.claims, got, c.want)
		}
	}
}

func TestRoundHours(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{-1.5, 0},
		{2.34, 2.3},
		{2.35, 2.4},
		{0.04, 0},
		{0.05, 0.1},
	}
	for _, c := range cases {
		if got := fleet.RoundHours(c.in); got != c.want {
			t.Errorf("RoundHours(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCorrectiveMaintenanceGrounds(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	ev, err := env.Fleet.OpenMaintenance(env.Ctx, fleet.MaintenanceOpenOptions{
		AircraftID:  ac.ID,
		Kind:        "corrective",
		Description: "prop crack",
		ActorID:     "tech-1",
	})
	if err != nil {
		t.Fatalf("open maintenance: %v", err)
	}
	if !ev.Grounding {
		t.Fatal("corrective work must ground")
	}
	got, err := env.Stores.Aircraft.Get(env.Ctx, ac.ID)
	if err != nil {
		t.Fatalf("get aircraft: %v", err)
	}
	if got.Status != fleet.StatusMaintenance {
		t.Fatalf("aircraft should be in maintenance, got %q", got.Status)
	}
}

func TestPreventiveIncidentGrounds(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	ev, err := env.Fleet.OpenMaintenance(env.Ctx, fleet.MaintenanceOpenOptions{
		AircraftID: ac.ID,
		Kind:       "preventive",
		Incident:   true,
		ActorID:    "tech-1",
	})
	if err != nil {
		t.Fatalf("open maintenance: %v", err)
	}
	if !ev.Grounding {
		t.Fatal("incident-driven preventive work must ground")
	}
}

func TestPreventiveMaintenanceDoesNotGround(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	ev, err := env.Fleet.OpenMaintenance(env.Ctx, fleet.MaintenanceOpenOptions{
		AircraftID: ac.ID,
		Kind:       "preventive",
		ActorID:    "tech-1",
	})
	if err != nil {
		t.Fatalf("open maintenance: %v", err)
	}
	if ev.Grounding {
		t.Fatal("routine preventive work must not ground")
	}
	got, _ := env.Stores.Aircraft.Get(env.Ctx, ac.ID)
	if got.Status != fleet.StatusAvailable {
		t.Fatalf("aircraft should stay available, got %q", got.Status)
	}
}

func TestMaintenanceLifecycleReleases(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	ev, err := env.Fleet.OpenMaintenance(env.Ctx, fleet.MaintenanceOpenOptions{
		AircraftID: ac.ID, Kind: "corrective", ActorID: "tech-1",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := env.Fleet.StartMaintenance(env.Ctx, ev.ID, "tech-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := env.Fleet.CompleteMaintenance(env.Ctx, ev.ID, "tech-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != "completed" || done.ResolvedAt == "" {
		t.Fatalf("completion not recorded: %+v", done)
	}
	got, _ := env.Stores.Aircraft.Get(env.Ctx, ac.ID)
	if got.Status != fleet.StatusAvailable {
		t.Fatalf("aircraft should be released to available, got %q", got.Status)
	}
}

func TestMaintenanceOutranksMission(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	if _, err := env.Stores.Missions.Create(env.Ctx, &domain.Mission{
		Name: "patrol", Status: "active", AircraftID: ac.ID, Radius: 100,
	}); err != nil {
		t.Fatalf("seed mission: %v", err)
	}
	if _, err := env.Fleet.OpenMaintenance(env.Ctx, fleet.MaintenanceOpenOptions{
		AircraftID: ac.ID, Kind: "corrective", ActorID: "tech-1",
	}); err != nil {
		t.Fatalf("open maintenance: %v", err)
	}
	got, _ := env.Stores.Aircraft.Get(env.Ctx, ac.ID)
	if got.Status != fleet.StatusMaintenance {
		t.Fatalf("maintenance must outrank the mission claim, got %q", got.Status)
	}
}

func TestAddFlightHoursAccumulatesRounded(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	if _, err := env.Fleet.AddFlightHours(env.Ctx, ac.ID, 1.5, "op-1"); err != nil {
		t.Fatalf("add hours: %v", err)
	}
	updated, err := env.Fleet.AddFlightHours(env.Ctx, ac.ID, 2.0, "op-1")
	if err != nil {
		t.Fatalf("add hours: %v", err)
	}
	if updated.FlightHours != 3.5 {
		t.Fatalf("expected 3.5 accumulated hours, got %v", updated.FlightHours)
	}
}

func TestClaimsExcludesReleasingClaim(t *testing.T) {
	env := newTestEnv(t)
	ac := env.seedAircraft(t)

	m, err := env.Stores.Missions.Create(env.Ctx, &domain.Mission{
		Name: "patrol", Status: "active", AircraftID: ac.ID, Radius: 100,
	})
	if err != nil {
		t.Fatalf("seed mission: %v", err)
	}
	claims, err := env.Fleet.Claims(env.Ctx, ac.ID, &fleet.Claim{Kind: "mission", RefID: m.ID})
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("the claim being released must be excluded, got %+v", claims)
	}
}
