// Command migrate manages the database schema with golang-migrate.
// Migrations live in the migrations/ directory as numbered up/down
// SQL file pairs; the applied version is tracked in schema_migrations.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const migrationTimeout = 5 * time.Minute

func main() {
	var (
		dbHost     = flag.String("db-host", getEnv("DB_HOST", "localhost"), "Database host")
		dbPort     = flag.String("db-port", getEnv("DB_PORT", "5432"), "Database port")
		dbUser     = flag.String("db-user", getEnv("DB_USER", "postgres"), "Database user")
		dbPassword = flag.String("db-password", getEnv("DB_PASSWORD", ""), "Database password")
		dbName     = flag.String("db-name", getEnv("DB_NAME", "membergate"), "Database name")
		dbSSLMode  = flag.String("db-sslmode", getEnv("DB_SSLMODE", "disable"), "Database SSL mode")
		migrPath   = flag.String("path", getEnv("MIGRATIONS_PATH", "migrations"), "Path to migrations directory")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]     Apply all or N pending migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]   Roll back all or N migrations\n")
		fmt.Fprintf(os.Stderr, "  version    Print the current migration version\n")
		fmt.Fprintf(os.Stderr, "  force V    Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  drop       Drop all tables\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		*dbUser, *dbPassword, *dbHost, *dbPort, *dbName, *dbSSLMode)

	if err := run(dbURL, *migrPath, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(dbURL, migrationsPath, cmd string, args []string) error {
	m, err := newMigrate(dbURL, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		return report(applySteps(m, args, 1))
	case "down":
		return report(applySteps(m, args, -1))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Println("No migrations have been applied yet")
				return nil
			}
			return fmt.Errorf("failed to get version: %w", err)
		}
		status := ""
		if dirty {
			status = " (dirty)"
		}
		log.Printf("Current migration version: %d%s", version, status)
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number")
		}
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		log.Printf("Version forced to %d", version)
		return nil
	case "drop":
		log.Println("WARNING: this drops ALL tables. Type 'yes' to confirm:")
		var confirm string
		if _, err := fmt.Scanln(&confirm); err != nil || confirm != "yes" {
			log.Println("Aborted")
			return nil
		}
		if err := m.Drop(); err != nil {
			return fmt.Errorf("drop failed: %w", err)
		}
		log.Println("All tables dropped")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// applySteps runs migrations in the given direction; zero parsed steps
// means all the way.
func applySteps(m *migrate.Migrate, args []string, direction int) error {
	steps := 0
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &steps); err != nil {
			return fmt.Errorf("invalid number of steps: %s", args[0])
		}
	}

	if steps > 0 {
		return m.Steps(steps * direction)
	}
	if direction > 0 {
		return m.Up()
	}
	return m.Down()
}

func report(err error) error {
	if err == nil {
		log.Println("Migration completed")
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to apply")
		return nil
	}
	return fmt.Errorf("migration failed: %w", err)
}

func newMigrate(dbURL, migrationsPath string) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+absPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = migrationTimeout

	return m, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
