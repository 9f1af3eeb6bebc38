package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"opd-token-allocation/cmd/bootstrap"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/infrastructure/database"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "opd-token-allocation",
		Short:        "OPD token allocation engine",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}

			app, err := bootstrap.New(cmd.Context(), cfg, log)
			if err != nil {
				log.Errorf("Failed to initialize application: %v", err)
				return err
			}

			return app.Run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			return database.MigrateUp(cfg.DB)
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")

			cfg, _, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			return database.MigrateDown(cfg.DB, steps)
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the Redis slot queues from the token table",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromFlag, _ := cmd.Flags().GetString("from")

			from := entity.NormalizeDate(time.Now())
			if fromFlag != "" {
				parsed, err := entity.ParseVisitDate(fromFlag)
				if err != nil {
					return fmt.Errorf("--from must be formatted as YYYY-MM-DD: %w", err)
				}
				from = parsed
			}

			cfg, log, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			app, err := bootstrap.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Reconcile(ctx, from)
			if err != nil {
				return err
			}

			fmt.Printf("Rebuilt %d slot(s), skipped %d busy: %d allocated, %d waiting (%v)\n", result.Slots, result.Skipped, result.Allocated, result.Waiting, result.Elapsed)
			return nil
		},
	}
	cmd.Flags().String("from", "", "First visit date to rebuild (default today)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors and patients for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			seedValue, _ := cmd.Flags().GetUint64("seed")

			cfg, log, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed a production database")
			}

			app, err := bootstrap.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Seed(cmd.Context(), doctors, patients, seedValue)
			if err != nil {
				return err
			}

			fmt.Printf("Seeded %d doctor(s) and %d patient(s)\n", result.Doctors, result.Patients)
			return nil
		},
	}
	cmd.Flags().Int("doctors", 10, "Number of doctors")
	cmd.Flags().Int("patients", 200, "Number of patients")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	return cmd
}
