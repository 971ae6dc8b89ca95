package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/contacts/cmd/contactsctl/cli"
	"github.com/odyssey-erp/contacts/internal/app"
	"github.com/odyssey-erp/contacts/internal/contacts"
	"github.com/odyssey-erp/contacts/internal/platform/db"
)

// migrator applies goose migrations; replaced in tests.
var migrator = db.Migrate

// jobsFactory opens the queue helpers; replaced in tests.
var jobsFactory = func(cfg *app.Config) *cli.JobsCLI {
	return cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword, DB: cfg.RedisDB})
}

// NewRootCmd creates the contactsctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contactsctl",
		Short:         "Operator tools for the contacts API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newMigrateCmd(), newQueueCmd())
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{db.MigrateUp, db.MigrateDown, db.MigrateStatus},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			command := db.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}
			if err := migrator(cmd.Context(), cfg.PGDSN, command); err != nil {
				return err
			}
			cmd.Printf("migrate %s: done\n", command)
			return nil
		},
	}
	return cmd
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the background task queue",
	}

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue depth",
		RunE: withJobs(func(cmd *cobra.Command, jobs *cli.JobsCLI) error {
			s, err := jobs.InspectQueue()
			if err != nil {
				return err
			}
			return cli.WriteStats(cmd.OutOrStdout(), s, asJSON)
		}),
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	var size int
	archived := &cobra.Command{
		Use:   "archived",
		Short: "List tasks that exhausted their retries",
		RunE: withJobs(func(cmd *cobra.Command, jobs *cli.JobsCLI) error {
			tasks, err := jobs.ListArchived(size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				cmd.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.LastErr)
			}
			return nil
		}),
	}
	archived.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	retry := &cobra.Command{
		Use:   "retry-archived",
		Short: "Move archived tasks back to pending",
		RunE: withJobs(func(cmd *cobra.Command, jobs *cli.JobsCLI) error {
			n, err := jobs.RetryArchived()
			if err != nil {
				return err
			}
			cmd.Printf("requeued %d tasks\n", n)
			return nil
		}),
	}

	var days int
	digest := &cobra.Command{
		Use:   "digest",
		Short: "Enqueue a birthday digest now",
		RunE: withJobs(func(cmd *cobra.Command, jobs *cli.JobsCLI) error {
			if days <= 0 || days > contacts.MaxBirthdayDays {
				return fmt.Errorf("days must be within 1..%d", contacts.MaxBirthdayDays)
			}
			info, err := jobs.TriggerDigest(cmd.Context(), days)
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s (%s)\n", info.ID, info.Type)
			return nil
		}),
	}
	digest.Flags().IntVar(&days, "days", contacts.DefaultBirthdayDays, "window in days")

	cmd.AddCommand(stats, archived, retry, digest)
	return cmd
}

func withJobs(fn func(cmd *cobra.Command, jobs *cli.JobsCLI) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		jobs := jobsFactory(cfg)
		defer func() {
			_ = jobs.Close()
		}()
		return fn(cmd, jobs)
	}
}
