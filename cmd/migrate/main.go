package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
)

const usage = `usage: migrate <command>

commands:
  up         apply every pending migration
  down       roll back every migration
  version    print the applied schema version
  to <N>     migrate up or down to version N
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.Database.Driver != database.DriverPostgres {
		fmt.Fprintf(os.Stderr, "migrations only run against postgres, DB_DRIVER is %q\n", cfg.Database.Driver)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogDir)
	defer log.Close()

	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, log)
	defer runner.Close()

	if err := run(runner, flag.Args()); err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}
}

func run(runner *migrations.Runner, args []string) error {
	switch args[0] {
	case "up":
		return runner.RunMigrations()
	case "down":
		return runner.MigrateDown()
	case "version":
		version, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (latest %d)\n", version, migrations.LatestVersion)
		return nil
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("to requires a version")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return runner.MigrateTo(uint(version))
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}
