package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/leadgraph/leadgraph/internal/cli/ui"
	"github.com/leadgraph/leadgraph/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
	Long:  "Run and manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Long:  "Apply all pending database migrations from the migrations/ directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openMigrationDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := createMigrationsTable(db); err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}

		applied, err := getAppliedMigrations(db)
		if err != nil {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}

		migrationFiles, err := filepath.Glob("migrations/*.sql")
		if err != nil {
			return fmt.Errorf("failed to find migration files: %w", err)
		}
		if len(migrationFiles) == 0 {
			fmt.Println("No migration files found in migrations/")
			return nil
		}
		sort.Strings(migrationFiles)

		pending := 0
		for _, file := range migrationFiles {
			name := filepath.Base(file)
			if applied[name] {
				continue
			}

			pending++
			fmt.Printf("Applying migration: %s\n", name)

			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read migration %s: %w", name, err)
			}

			// Each migration runs in its own transaction.
			tx, err := db.Begin()
			if err != nil {
				return fmt.Errorf("failed to start transaction: %w", err)
			}
			if _, err := tx.Exec(string(content)); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %s failed: %w", name, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to record migration %s: %w", name, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration %s: %w", name, err)
			}

			ui.Successf(os.Stdout, "Applied %s", name)
		}

		if pending == 0 {
			fmt.Println("No pending migrations")
		} else {
			ui.Successf(os.Stdout, "Applied %d migration(s)", pending)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Display which migrations have been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openMigrationDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := createMigrationsTable(db); err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}
		applied, err := getAppliedMigrations(db)
		if err != nil {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}

		migrationFiles, err := filepath.Glob("migrations/*.sql")
		if err != nil {
			return fmt.Errorf("failed to find migration files: %w", err)
		}
		if len(migrationFiles) == 0 {
			fmt.Println("No migration files found in migrations/")
			return nil
		}
		sort.Strings(migrationFiles)

		fmt.Println("Migration Status:")
		fmt.Println(strings.Repeat("-", 60))
		for _, file := range migrationFiles {
			name := filepath.Base(file)
			status := "pending"
			icon := "○"
			if applied[name] {
				status = "applied"
				icon = "✓"
			}
			fmt.Printf("%s %s [%s]\n", icon, name, status)
		}
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("Total: %d migrations (%d applied, %d pending)\n",
			len(migrationFiles), len(applied), len(migrationFiles)-len(applied))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func openMigrationDB() (*sql.DB, error) {
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL or database.url in leadgraph.yml")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// createMigrationsTable creates the schema_migrations table if it doesn't exist
func createMigrationsTable(db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT NOW()
)`

	_, err := db.Exec(query)
	return err
}

// getAppliedMigrations returns a map of applied migration names
func getAppliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}
