// Package database provides the SQLite store behind the command audit
// journal.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying embedded, versioned SQL migrations
//   - Health checks for the status API
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
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
// optional matching .down.sql. Each migration runs in its own transaction.
package database
