package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/bazaar-backend/internal/stores"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate|backfill-store-kinds")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory (embedded set when left at the default)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	dryRun := flag.Bool("dry-run", false, "report reclassified stores without writing (for backfill-store-kinds)")

	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx = logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if *cmd == "backfill-store-kinds" {
		backfillStoreKinds(ctx, logg, dbClient, *dryRun)
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	migrator, err := migrate.New(sqlDB, migrationsFS(*dir))
	requireResource(ctx, logg, "migrator", err)

	logg.Info(ctx, "migrate ready")

	var results []migrate.Applied
	switch *cmd {
	case "up":
		results, err = migrator.Up(ctx)
	case "down":
		results, err = migrator.Down(ctx)
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		results, err = migrator.ToVersion(ctx, *version)
	case "status":
		rows, statusErr := migrator.Status(ctx)
		if statusErr != nil {
			fail("goose status failed: %v", statusErr)
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied " + row.AppliedAt
			}
			fmt.Printf("%d  %-28s  %s\n", row.Version, state, row.Path)
		}
		return
	default:
		fail("unknown -cmd value: %s", *cmd)
	}

	for _, r := range results {
		fmt.Printf("%s %d %s\n", r.Direction, r.Version, r.Path)
	}
	if err != nil {
		fail("goose %s failed: %v", *cmd, err)
	}
	if len(results) == 0 {
		fmt.Println("no migrations to run")
	}
}

// migrationsFS reads from disk when -dir points somewhere other than the
// default, so ad-hoc directories can be applied without rebuilding.
func migrationsFS(dir string) fs.FS {
	if dir == "" || dir == migrate.DefaultDir {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func backfillStoreKinds(ctx context.Context, logg *logger.Logger, dbClient *db.Client, dryRun bool) {
	svc, err := stores.NewService(stores.NewRepository(dbClient.DB()), logg)
	requireResource(ctx, logg, "stores service", err)
	result, err := svc.BackfillKinds(ctx, dryRun)
	if err != nil {
		fail("store kind backfill failed: %v", err)
	}
	fmt.Printf("scanned %d stores (dry run: %t)\n", result.Scanned, dryRun)
	for kind, count := range result.Reclassified {
		fmt.Printf("  %s: %d\n", kind, count)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
