package db

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand dispatches the 'migrate' subcommand.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	// Open without running migrations; the subcommands manage the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		reportVersion(database)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back successfully")
		reportVersion(database)

	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		latest, err := LatestMigrationVersion()
		if err != nil {
			log.Fatalf("Failed to read embedded migrations: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest available: %d\n", latest)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("\nWARNING: a migration failed mid-execution.")
			fmt.Println("Inspect the database, then run: mmwave-report migrate force <version>")
		}

	case "version":
		if len(args) < 2 {
			log.Fatal("Usage: mmwave-report migrate version <version_number>")
		}
		var target uint
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateTo(target); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		log.Printf("Migrated to version %d", target)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: mmwave-report migrate force <version_number>")
		}
		var target int
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(target); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", target)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", args[0])
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func reportVersion(database *DB) {
	version, dirty, _ := database.MigrateVersion()
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: mmwave-report migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --db-path <path>    Path to database file (default: mmwave_data.db)")
}
