package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flightdeck/internal/blob"
	"flightdeck/internal/config"
	"flightdeck/internal/db"
	"flightdeck/internal/domain"
	"flightdeck/internal/events"
	"flightdeck/internal/fleet"
	"flightdeck/internal/migrate"
	"flightdeck/internal/mirror"
	"flightdeck/internal/ops"
	"flightdeck/internal/refresh"
	"flightdeck/internal/remote"
	"flightdeck/internal/server"
	"flightdeck/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "fd",
	Short: "Flightdeck CLI",
	Long: `Flightdeck is the operations backend for a public-safety drone fleet.
Core concepts:
- Workspace: your .flightdeck directory holding the local mirror database.
- Remote: the hosted collection backend; every read and write tries it first
  within a bounded time budget and falls back to the mirror when it is slow
  or unreachable. Offline writes are journaled and replayed later.
- Mission: an operation with a circular footprint (center, radius, altitude),
  an owning aircraft, and a responsible pilot. Multi-day missions are broken
  into day rosters with their own aircraft and crew allocations.
- Aircraft: status is derived from claims (missions, open days, grounding
  maintenance); nobody assigns it by hand.
- Conflicts: overlapping footprints of active missions are advisory; creation
  proceeds once the operator acknowledges them, and the other mission's pilot
  gets a notice.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLIGHTDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-operator", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation despite partial failures")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(aircraftCmd())
	rootCmd.AddCommand(pilotCmd())
	rootCmd.AddCommand(maintenanceCmd())
	rootCmd.AddCommand(conflictCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

// --- mission ---

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "Missions flow active -> completed/cancelled. Completion releases the owning aircraft, credits flight time, and appends a flight log.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionGetCmd())
	m.AddCommand(missionUpdateCmd())
	m.AddCommand(missionCompleteCmd())
	m.AddCommand(missionCancelCmd())
	m.AddCommand(missionDayCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var opts ops.MissionCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				m, conflicts, err := e.Ops.CreateMission(ctx, opts)
				if errors.Is(err, ops.ErrConflictsUnacknowledged) {
					fmt.Printf("%d active mission(s) overlap this footprint:\n", len(conflicts))
					for _, c := range conflicts {
						fmt.Printf("  %s  %s (pilot %s)\n", c.ID, c.Name, c.PilotID)
					}
					fmt.Println("re-run with --acknowledge-conflicts to create anyway")
					return err
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "mission name")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "mission kind (search, patrol, survey, ...)")
	cmd.Flags().Float64Var(&opts.Latitude, "lat", 0, "footprint center latitude")
	cmd.Flags().Float64Var(&opts.Longitude, "long", 0, "footprint center longitude")
	cmd.Flags().Float64Var(&opts.Radius, "radius", 0, "footprint radius in meters")
	cmd.Flags().Float64Var(&opts.Altitude, "altitude", 0, "operating altitude in meters")
	cmd.Flags().StringVar(&opts.AircraftID, "aircraft", "", "owning aircraft id")
	cmd.Flags().StringVar(&opts.PilotID, "pilot", "", "responsible pilot id")
	cmd.Flags().BoolVar(&opts.MultiDay, "multi-day", false, "mission spans multiple days")
	cmd.Flags().BoolVar(&opts.Seasonal, "seasonal", false, "mission belongs to a seasonal reporting program")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().BoolVar(&opts.AcknowledgeConflicts, "acknowledge-conflicts", false, "create despite airspace conflicts")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("radius")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				var missions []*domain.Mission
				var err error
				if status != "" {
					missions, err = e.Stores.Missions.Filter(ctx, store.Where{"status": status})
				} else {
					missions, err = e.Stores.Missions.List(ctx, "created_at")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Aircraft", "Pilot", "Radius (m)"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Status, m.AircraftID, m.PilotID, m.Radius})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, completed, cancelled)")
	return cmd
}

func missionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				m, err := e.Stores.Missions.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var name, description string
	var lat, long, radius, altitude float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update mission fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.MissionPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("lat") {
				patch.Latitude = &lat
			}
			if cmd.Flags().Changed("long") {
				patch.Longitude = &long
			}
			if cmd.Flags().Changed("radius") {
				patch.Radius = &radius
			}
			if cmd.Flags().Changed("altitude") {
				patch.Altitude = &altitude
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				m, err := e.Stores.Missions.Update(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "mission name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Float64Var(&lat, "lat", 0, "footprint center latitude")
	cmd.Flags().Float64Var(&long, "long", 0, "footprint center longitude")
	cmd.Flags().Float64Var(&radius, "radius", 0, "footprint radius in meters")
	cmd.Flags().Float64Var(&altitude, "altitude", 0, "operating altitude in meters")
	return cmd
}

func missionCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a mission, releasing its aircraft and logging flight time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				res, err := e.Ops.CompleteMission(ctx, args[0], viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					printReleaseFailures(res.Failures)
					return err
				}
				printReleaseFailures(res.Failures)
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func missionCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a mission without crediting flight time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				res, err := e.Ops.CancelMission(ctx, args[0], viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					printReleaseFailures(res.Failures)
					return err
				}
				printReleaseFailures(res.Failures)
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

// --- mission day ---

func missionDayCmd() *cobra.Command {
	day := &cobra.Command{
		Use:   "day",
		Short: "Manage multi-day mission rosters",
		Long:  "Each day of a multi-day mission has its own aircraft and crew allocations. Saving notes and closing the day are separate actions; only closing releases aircraft.",
	}
	day.AddCommand(dayCreateCmd())
	day.AddCommand(dayListCmd())
	day.AddCommand(dayAllocateAircraftCmd())
	day.AddCommand(dayAllocatePersonnelCmd())
	day.AddCommand(dayNotesCmd())
	day.AddCommand(dayCloseCmd())
	day.AddCommand(dayDeleteCmd())
	return day
}

func dayCreateCmd() *cobra.Command {
	var opts ops.DayCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a day roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				d, err := e.Ops.CreateDay(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.MissionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&opts.Date, "date", "", "day date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PilotID, "pilot", "", "responsible pilot id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "initial notes")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("pilot")
	return cmd
}

func dayListCmd() *cobra.Command {
	var missionID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List day rosters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				var days []*domain.MissionDay
				var err error
				if missionID != "" {
					days, err = e.Stores.MissionDays.Filter(ctx, store.Where{"mission_id": missionID})
				} else {
					days, err = e.Stores.MissionDays.List(ctx, "date")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Mission", "Date", "Status", "Pilot"})
				for _, d := range days {
					tw.AppendRow(table.Row{d.ID, d.MissionID, d.Date, d.Status, d.PilotID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission filter")
	return cmd
}

func dayAllocateAircraftCmd() *cobra.Command {
	var aircraftID string
	cmd := &cobra.Command{
		Use:   "allocate-aircraft <day-id>",
		Short: "Allocate an aircraft to an open day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				link, err := e.Ops.AllocateAircraft(ctx, args[0], aircraftID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(link)
			})
		},
	}
	cmd.Flags().StringVar(&aircraftID, "aircraft", "", "aircraft id")
	_ = cmd.MarkFlagRequired("aircraft")
	return cmd
}

func dayAllocatePersonnelCmd() *cobra.Command {
	var pilotID, role string
	cmd := &cobra.Command{
		Use:   "allocate-personnel <day-id>",
		Short: "Allocate a pilot to an open day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				link, err := e.Ops.AllocatePersonnel(ctx, args[0], pilotID, role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(link)
			})
		},
	}
	cmd.Flags().StringVar(&pilotID, "pilot", "", "pilot id")
	cmd.Flags().StringVar(&role, "role", "pilot_in_command", "role (pilot_in_command, observer)")
	_ = cmd.MarkFlagRequired("pilot")
	return cmd
}

func dayNotesCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "notes <day-id>",
		Short: "Save day notes without releasing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				d, err := e.Ops.EditDayNotes(ctx, args[0], notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes text")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func dayCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <day-id>",
		Short: "Close a day, releasing its allocated aircraft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				res, err := e.Ops.CloseDay(ctx, args[0], viper.GetString("actor-id"), viper.GetBool("force"))
				printReleaseFailures(res.Failures)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func dayDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <day-id>",
		Short: "Delete a day roster and its allocations (aircraft status untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.Ops.DeleteDay(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- aircraft ---

func aircraftCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "aircraft",
		Short: "Manage aircraft",
	}
	a.AddCommand(aircraftCreateCmd())
	a.AddCommand(aircraftListCmd())
	a.AddCommand(aircraftGetCmd())
	a.AddCommand(aircraftClaimsCmd())
	a.AddCommand(aircraftSyncCmd())
	return a
}

func aircraftCreateCmd() *cobra.Command {
	var ac domain.Aircraft
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an aircraft",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac.Status = fleet.StatusAvailable
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				created, err := e.Stores.Aircraft.Create(ctx, &ac)
				if err != nil {
					return err
				}
				_ = e.Events.Append(ctx, "aircraft.registered", "aircraft", created.ID, viper.GetString("actor-id"), nil)
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&ac.Callsign, "callsign", "", "callsign")
	cmd.Flags().StringVar(&ac.Model, "model", "", "airframe model")
	_ = cmd.MarkFlagRequired("callsign")
	return cmd
}

func aircraftListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List aircraft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				var craft []*domain.Aircraft
				var err error
				if status != "" {
					craft, err = e.Stores.Aircraft.Filter(ctx, store.Where{"status": status})
				} else {
					craft, err = e.Stores.Aircraft.List(ctx, "callsign")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(craft)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Callsign", "Model", "Status", "Flight Hours"})
				for _, ac := range craft {
					tw.AppendRow(table.Row{ac.ID, ac.Callsign, ac.Model, ac.Status, ac.FlightHours})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (available, in_operation, maintenance)")
	return cmd
}

func aircraftGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get aircraft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ac, err := e.Stores.Aircraft.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ac)
			})
		},
	}
	return cmd
}

func aircraftClaimsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims <id>",
		Short: "Show what currently holds an aircraft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				claims, err := e.Fleet.Claims(ctx, args[0], nil)
				if err != nil {
					return err
				}
				out := map[string]any{
					"aircraft_id": args[0],
					"status":      fleet.DeriveStatus(claims),
					"claims":      claims,
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func aircraftSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-status <id>",
		Short: "Recompute aircraft status from its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ac, err := e.Fleet.SyncStatus(ctx, args[0], viper.GetString("actor-id"), nil)
				if err != nil {
					return err
				}
				return printJSONOrTable(ac)
			})
		},
	}
	return cmd
}

// --- pilot ---

func pilotCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "pilot",
		Short: "Manage pilots",
	}
	p.AddCommand(pilotCreateCmd())
	p.AddCommand(pilotListCmd())
	return p
}

func pilotCreateCmd() *cobra.Command {
	var pilot domain.Pilot
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a pilot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				created, err := e.Stores.Pilots.Create(ctx, &pilot)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&pilot.Name, "name", "", "pilot name")
	cmd.Flags().StringVar(&pilot.License, "license", "", "license number")
	cmd.Flags().StringVar(&pilot.Phone, "phone", "", "contact phone")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func pilotListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pilots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				pilots, err := e.Stores.Pilots.List(ctx, "name")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pilots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "License", "Phone"})
				for _, p := range pilots {
					tw.AppendRow(table.Row{p.ID, p.Name, p.License, p.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- maintenance ---

func maintenanceCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "maintenance",
		Short: "Manage maintenance events",
		Long:  "Corrective work or anything resulting from an in-flight incident grounds the aircraft until the event completes.",
	}
	m.AddCommand(maintenanceOpenCmd())
	m.AddCommand(maintenanceStartCmd())
	m.AddCommand(maintenanceCompleteCmd())
	m.AddCommand(maintenanceListCmd())
	m.AddCommand(maintenanceAttachLogCmd())
	return m
}

func maintenanceOpenCmd() *cobra.Command {
	var opts fleet.MaintenanceOpenOptions
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Report an issue on an aircraft",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ev, err := e.Fleet.OpenMaintenance(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AircraftID, "aircraft", "", "aircraft id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "preventive", "kind (preventive, corrective)")
	cmd.Flags().BoolVar(&opts.Incident, "incident", false, "resulted from an in-flight incident")
	cmd.Flags().StringVar(&opts.Description, "description", "", "issue description")
	cmd.Flags().StringVar(&opts.LogURL, "log-url", "", "link to an external log")
	_ = cmd.MarkFlagRequired("aircraft")
	return cmd
}

func maintenanceStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start scheduled maintenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ev, err := e.Fleet.StartMaintenance(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	return cmd
}

func maintenanceCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete maintenance and re-derive the aircraft status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ev, err := e.Fleet.CompleteMaintenance(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	return cmd
}

func maintenanceListCmd() *cobra.Command {
	var aircraftID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List maintenance events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				var items []*domain.MaintenanceEvent
				var err error
				if aircraftID != "" {
					items, err = e.Stores.Maintenance.Filter(ctx, store.Where{"aircraft_id": aircraftID})
				} else {
					items, err = e.Stores.Maintenance.List(ctx, "created_at")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Aircraft", "Kind", "Status", "Grounding", "Description"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.AircraftID, ev.Kind, ev.Status, ev.Grounding, ev.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&aircraftID, "aircraft", "", "aircraft filter")
	return cmd
}

func maintenanceAttachLogCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "attach-log <id>",
		Short: "Attach a technician log file to a maintenance event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				url, err := e.Blobs.Store(ctx, filepath.Base(filePath), data)
				if err != nil {
					return err
				}
				ev, err := e.Stores.Maintenance.Update(ctx, args[0], domain.MaintenancePatch{LogURL: &url})
				if err != nil {
					return err
				}
				_ = e.Events.Append(ctx, "maintenance.log_attached", "maintenance_event", args[0], viper.GetString("actor-id"), events.EventPayload{
					"log_url": url,
				})
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to log file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- conflicts ---

func conflictCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "conflict",
		Short: "Airspace conflicts and notices",
	}
	c.AddCommand(conflictCheckCmd())
	c.AddCommand(conflictNoticesCmd())
	c.AddCommand(conflictAckCmd())
	return c
}

func conflictCheckCmd() *cobra.Command {
	var cand ops.ConflictCheck
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a footprint against active missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				conflicts, err := e.Ops.CheckConflicts(ctx, cand)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(conflicts)
				}
				if len(conflicts) == 0 {
					fmt.Println("no conflicts")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Pilot", "Radius (m)"})
				for _, m := range conflicts {
					tw.AppendRow(table.Row{m.ID, m.Name, m.PilotID, m.Radius})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cand.MissionID, "mission", "", "mission id to exclude (when re-checking an existing mission)")
	cmd.Flags().Float64Var(&cand.Latitude, "lat", 0, "footprint center latitude")
	cmd.Flags().Float64Var(&cand.Longitude, "long", 0, "footprint center longitude")
	cmd.Flags().Float64Var(&cand.Radius, "radius", 0, "footprint radius in meters")
	_ = cmd.MarkFlagRequired("radius")
	return cmd
}

func conflictNoticesCmd() *cobra.Command {
	var pilotID string
	var unacked bool
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List conflict notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				notices, err := e.Stores.ConflictNotices.FilterFunc(ctx, func(n *domain.ConflictNotice) bool {
					if pilotID != "" && n.PilotID != pilotID {
						return false
					}
					if unacked && n.Acknowledged {
						return false
					}
					return true
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notices)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Pilot", "Mission", "Acked", "Message"})
				for _, n := range notices {
					tw.AppendRow(table.Row{n.ID, n.PilotID, n.MissionID, n.Acknowledged, n.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pilotID, "pilot", "", "pilot filter")
	cmd.Flags().BoolVar(&unacked, "unacked", false, "only unacknowledged notices")
	return cmd
}

func conflictAckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <notice-id>",
		Short: "Acknowledge a conflict notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				n, err := e.Ops.AcknowledgeNotice(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	return cmd
}

// --- sync / watch ---

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay journaled offline writes against the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if e.Stores.Remote == nil {
					return fmt.Errorf("remote is not enabled; nothing to sync against")
				}
				results, err := e.Reconciler.Drain(ctx)
				if err != nil {
					return err
				}
				failed := store.Failed(results)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"replayed": len(results) - len(failed),
						"failed":   failed,
					})
				}
				fmt.Printf("replayed %d journaled write(s), %d failed\n", len(results)-len(failed), len(failed))
				for _, f := range failed {
					fmt.Printf("  %s %s/%s: %s\n", f.Op, f.Collection, f.RecordID, f.Error)
				}
				return nil
			})
		},
	}
	return cmd
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background mirror refresh loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if interval <= 0 {
					interval = e.Config.RefreshInterval()
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				sched := refresh.New(ctx, e.Stores, e.Reconciler, interval)
				sched.Start()
				<-ctx.Done()
				sched.Stop()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default from config)")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the self-hosted collection backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("FLIGHTDECK_JWT_SECRET"),
				APIKey:         os.Getenv("FLIGHTDECK_API_KEY"),
				AllowAnonymous: allowAnonymous,
			}
			if authCfg.JWTSecret == "" && authCfg.APIKey == "" && !allowAnonymous {
				return fmt.Errorf("set FLIGHTDECK_JWT_SECRET or FLIGHTDECK_API_KEY, or pass --allow-anonymous")
			}
			handler, err := server.New(server.Config{DB: conn, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Flightdeck collections API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "serve without authentication (dev only)")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	return c
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				items, err := e.Events.Latest(ctx, n, evtType, entityKind)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	return cmd
}

// --- helpers ---

type env struct {
	Conn       *sql.DB
	Config     *config.Config
	Stores     *store.Stores
	Events     events.Writer
	Fleet      *fleet.Service
	Ops        *ops.Service
	Reconciler store.Reconciler
	Blobs      blob.Store
}

func withEnv(ctx context.Context, fn func(context.Context, *env) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	var adapter remote.Adapter
	if cfg.Remote.Enabled {
		client := remote.New(cfg.Remote.BaseURL)
		client.APIKey = cfg.Remote.APIKey
		token, err := cfg.BearerToken()
		if err != nil {
			return err
		}
		client.BearerToken = token
		adapter = client
	}
	m := mirror.New(conn)
	stores := store.NewStores(adapter, m, cfg.Timeout())
	ev := events.Writer{DB: conn}
	fl := fleet.New(stores, ev)
	svc := ops.New(stores, fl, ev)
	if adapter != nil {
		svc.Reporting = ops.NewRemoteReporting(adapter)
	}
	blobs, err := blob.NewFilesystem(filepath.Join(workspace, ".flightdeck", "blobs"))
	if err != nil {
		return err
	}
	return fn(ctx, &env{
		Conn:       conn,
		Config:     cfg,
		Stores:     stores,
		Events:     ev,
		Fleet:      fl,
		Ops:        svc,
		Reconciler: store.Reconciler{Remote: adapter, Mirror: m},
		Blobs:      blobs,
	})
}

func printReleaseFailures(failures []ops.ReleaseFailure) {
	if viper.GetBool("json") || len(failures) == 0 {
		return
	}
	fmt.Printf("%d aircraft not released:\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  %s: %s\n", f.AircraftID, f.Error)
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
