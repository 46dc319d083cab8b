// Package database provides the SQLite connection of the subsystem runtime.
//
// It holds the places and models tables read by the registry when it
// builds an executor and written by every subsystem commit.
//
//   - WAL mode so cold loads can read while commits write
//   - busy timeout so contended writes wait instead of failing
//   - embedded, additive migrations (see the migrations package)
//   - file permissions 0600
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. New columns must be nullable or have a default.
package database
