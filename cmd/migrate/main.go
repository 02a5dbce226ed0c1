package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/asakaida/remotemodel/internal/infrastructure/config"
	"github.com/asakaida/remotemodel/internal/infrastructure/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var (
	envFlag string
	db      *database.DB
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for remotemodel",
	Long: `Database migration tool for remotemodel.
Manages the PostgreSQL record store schema using golang-migrate.
Migrations are embedded in the binary.`,
	PersistentPreRunE:  setupDatabase,
	PersistentPostRunE: closeDatabase,
	SilenceUsage:       true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	log.Printf("Using environment: %s", envFlag)

	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Printf("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)
	return nil
}

func closeDatabase(cmd *cobra.Command, args []string) error {
	return db.Close()
}

// withMigrator runs fn on a migrate instance over the embedded migrations
func withMigrator(fn func(m *migrate.Migrate) error) error {
	m, err := db.Migrator()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func runUp(cmd *cobra.Command, args []string) error {
	return withMigrator(func(m *migrate.Migrate) error {
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("No migrations to apply")
		case err != nil:
			return fmt.Errorf("migration up failed: %w", err)
		default:
			log.Println("Migration up completed successfully")
		}
		return nil
	})
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		steps = n
	}

	return withMigrator(func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("No migrations to rollback")
		case err != nil:
			return fmt.Errorf("migration down failed: %w", err)
		default:
			log.Printf("Migration down completed successfully (rolled back %d migration(s))", steps)
		}
		return nil
	})
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	return withMigrator(func(m *migrate.Migrate) error {
		err := m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Printf("Already at version %d", version)
		case err != nil:
			return fmt.Errorf("migration goto failed: %w", err)
		default:
			log.Printf("Migration goto %d completed successfully", version)
		}
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) error {
	return withMigrator(func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("Current version: No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}

		if dirty {
			log.Printf("Current version: %d (dirty - migration may have failed)", version)
		} else {
			log.Printf("Current version: %d", version)
		}
		return nil
	})
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	return withMigrator(func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
		log.Printf("Migration forced to version %d", version)
		return nil
	})
}
