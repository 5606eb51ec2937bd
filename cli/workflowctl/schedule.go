package workflowctl

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/scheduler"
	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
	"github.com/realtalishaw/super-enigma/engine/store/postgres"
	"github.com/realtalishaw/super-enigma/pkg/config"
)

// schedulerConfig loads pkg/config (spec.md §6's TICK_MS/LOOKAHEAD_MS/
// MAX_CATCHUP_PER_TICK environment variables) rather than hard-coding
// scheduler.DefaultConfig(), so an operator can tune the same tick/lookahead
// the live Scheduler process uses when previewing or upserting offline.
func schedulerConfig() scheduler.Config {
	cfg, err := config.Load()
	if err != nil {
		return scheduler.DefaultConfig()
	}
	return scheduler.Config{
		TickInterval:       cfg.Tick(),
		Lookahead:          cfg.Lookahead(),
		MaxCatchupPerTick:  cfg.MaxCatchupPerTick,
		JitterMax:          time.Duration(cfg.DefaultJitterMS) * time.Millisecond,
		MaxEnqueueAttempts: scheduler.DefaultConfig().MaxEnqueueAttempts,
	}
}

// dbFlags holds the Postgres connection flags shared by every `schedule`
// subcommand (spec.md §6 names schedules as persisted state, so every verb
// but a dry-run preview needs a store connection).
type dbFlags struct {
	dsn, host, port, user, password, dbName, sslMode string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dsn, "db-dsn", "", "full Postgres connection string (overrides the other --db-* flags)")
	cmd.Flags().StringVar(&f.host, "db-host", "localhost", "Postgres host")
	cmd.Flags().StringVar(&f.port, "db-port", "5432", "Postgres port")
	cmd.Flags().StringVar(&f.user, "db-user", "postgres", "Postgres user")
	cmd.Flags().StringVar(&f.password, "db-password", "", "Postgres password")
	cmd.Flags().StringVar(&f.dbName, "db-name", "workflow_control_plane", "Postgres database name")
	cmd.Flags().StringVar(&f.sslMode, "db-sslmode", "disable", "Postgres sslmode")
}

func (f *dbFlags) config() *postgres.Config {
	return &postgres.Config{
		ConnString: f.dsn, Host: f.host, Port: f.port, User: f.user,
		Password: f.password, DBName: f.dbName, SSLMode: f.sslMode,
	}
}

// openScheduler connects to Postgres and returns a Scheduler wired only
// for the CRUD surface (upsert/pause/delete/preview); the tick loop's
// Dispatcher and lease.Elector are both nil since none of those verbs
// exercise them.
func openScheduler(ctx context.Context, f *dbFlags) (*scheduler.Scheduler, func(), error) {
	st, err := postgres.NewStore(ctx, f.config())
	if err != nil {
		return nil, nil, fmt.Errorf("workflowctl: connect to postgres: %w", err)
	}
	repo := postgres.NewScheduleRepo(st.Pool())
	sched := scheduler.New(repo, nil, nil, schedulerConfig())
	closeFn := func() { _ = st.Close(ctx) }
	return sched, closeFn, nil
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron schedules",
	}
	cmd.AddCommand(
		newScheduleUpsertCmd(),
		newSchedulePauseCmd(),
		newScheduleDeleteCmd(),
		newSchedulePreviewCmd(),
	)
	return cmd
}

func newScheduleUpsertCmd() *cobra.Command {
	var db dbFlags
	var id, workflowID, cronExpr, tz, overlap, catchup, endAt string
	var jitterSecs int

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a cron schedule",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			sched, closeFn, err := openScheduler(ctx, &db)
			if err != nil {
				return err
			}
			defer closeFn()

			in := scheduler.UpsertScheduleInput{
				WorkflowID: workflowID, CronExpr: cronExpr, Timezone: tz,
				Overlap: scheduler.OverlapPolicy(overlap), Catchup: scheduler.CatchupPolicy(catchup),
				JitterSecs: jitterSecs,
			}
			if id != "" {
				parsed, err := core.ParseID(id)
				if err != nil {
					return fmt.Errorf("workflowctl: --id: %w", err)
				}
				in.ID = parsed
			}
			if endAt != "" {
				t, err := time.Parse(time.RFC3339, endAt)
				if err != nil {
					return fmt.Errorf("workflowctl: --end-at must be RFC3339: %w", err)
				}
				in.EndAt = &t
			}

			result, err := sched.UpsertSchedule(ctx, in)
			if err != nil {
				return err
			}
			return printJSONReport(result)
		},
	}
	db.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "existing schedule id to update (omit to create)")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "workflow to activate on each fire")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression (5-field or descriptor)")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&overlap, "overlap", string(scheduler.OverlapAllow), "allow|skip|queue")
	cmd.Flags().StringVar(&catchup, "catchup", string(scheduler.CatchupNone), "none|fire_immediately|spread")
	cmd.Flags().IntVar(&jitterSecs, "jitter-secs", 0, "maximum jitter applied to each fire time, in seconds")
	cmd.Flags().StringVar(&endAt, "end-at", "", "RFC3339 time after which the schedule stops firing")
	_ = cmd.MarkFlagRequired("workflow-id")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newSchedulePauseCmd() *cobra.Command {
	var db dbFlags
	var paused bool
	cmd := &cobra.Command{
		Use:   "pause <schedule-id>",
		Short: "Pause or resume a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := core.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("workflowctl: schedule id: %w", err)
			}
			ctx := context.Background()
			sched, closeFn, err := openScheduler(ctx, &db)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := sched.PauseSchedule(ctx, id, paused); err != nil {
				return err
			}
			return printJSONReport(map[string]any{"schedule_id": id, "paused": paused})
		},
	}
	db.register(cmd)
	cmd.Flags().BoolVar(&paused, "paused", true, "false to resume a previously paused schedule")
	return cmd
}

func newScheduleDeleteCmd() *cobra.Command {
	var db dbFlags
	cmd := &cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := core.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("workflowctl: schedule id: %w", err)
			}
			ctx := context.Background()
			sched, closeFn, err := openScheduler(ctx, &db)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := sched.DeleteSchedule(ctx, id); err != nil {
				return err
			}
			return printJSONReport(map[string]any{"schedule_id": id, "deleted": true})
		},
	}
	db.register(cmd)
	return cmd
}

func newSchedulePreviewCmd() *cobra.Command {
	var db dbFlags
	var cronExpr, tz string
	var count int

	cmd := &cobra.Command{
		Use:   "preview [schedule-id]",
		Short: "Preview upcoming fire times for a stored schedule, or a raw --cron expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := core.ParseID(args[0])
				if err != nil {
					return fmt.Errorf("workflowctl: schedule id: %w", err)
				}
				ctx := context.Background()
				sched, closeFn, err := openScheduler(ctx, &db)
				if err != nil {
					return err
				}
				defer closeFn()
				result, err := sched.GetSchedule(ctx, id)
				if err != nil {
					return err
				}
				return printJSONReport(result)
			}
			if cronExpr == "" {
				return fmt.Errorf("workflowctl: provide a schedule id or --cron")
			}
			spec, err := cronspec.Parse(cronExpr, tz)
			if err != nil {
				return err
			}
			cursor := time.Now().UTC()
			times := make([]time.Time, 0, count)
			for i := 0; i < count; i++ {
				cursor = spec.Next(cursor)
				times = append(times, cursor)
			}
			return printJSONReport(map[string]any{"cron": cronExpr, "timezone": tz, "next": times})
		},
	}
	db.register(cmd)
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression to preview without a stored schedule")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone for --cron")
	cmd.Flags().IntVar(&count, "count", 5, "number of upcoming fire times to print")
	return cmd
}
