// Package database provides SQLite connectivity and schema migrations for CDL Core.
//
// All queries use parameterised statements. Foreign keys are enforced on
// every connection, and the pool is limited to one connection so
// multi-statement aggregate writes never interleave.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations directory as
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql pairs.
package database
