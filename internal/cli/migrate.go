package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablecast/entitlement/internal/platform/db"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back or inspect ledger schema migrations.`,
	}
	cmd.PersistentFlags().StringVarP(&strategy, "strategy", "s", "", "Migration strategy (auto, goose); defaults to database.migration")

	run := func(fn func(env *Env, s db.Strategy) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			name := strategy
			if name == "" {
				name = env.Cfg.Database.Migration
			}
			s, err := db.NewStrategy(name, env.Log)
			if err != nil {
				return err
			}
			return fn(env, s)
		}
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: run(func(env *Env, s db.Strategy) error {
			if err := s.Down(env.DB, steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			env.Log.Infow("rollback completed", "steps", steps)
			return nil
		}),
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: run(func(env *Env, s db.Strategy) error {
				env.Log.Infow("running up migrations", "strategy", s.Name())
				if err := s.Up(env.DB); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				env.Log.Infow("migrations completed successfully")
				return nil
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: run(func(env *Env, s db.Strategy) error {
				if err := s.Status(env.DB); err != nil {
					return err
				}
				v, err := s.Version(env.DB)
				if err != nil {
					return err
				}
				cmd.Printf("strategy=%s version=%d\n", s.Name(), v)
				return nil
			}),
		},
	)
	return cmd
}
