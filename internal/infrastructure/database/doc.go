// Package database opens the hub's SQLite file and applies its schema
// migrations.
//
// Every persistent log in the hub lives in this one file: device status
// history, scene executions, cron bookkeeping, the location cache and one
// table per tracker. Trackers create their own tables on construction;
// everything else comes from migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction
// and is recorded in schema_migrations.
package database
