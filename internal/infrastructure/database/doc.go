// Package database is the SQLite layer under the daemon's persistent
// state: pipeline run history (pipeline_runs) and recovery session
// snapshots (session_snapshots).
//
// Open configures WAL mode with a busy timeout and pins the pool to a
// single connection, which matches SQLite's single-writer model. The
// file and its directory are created with owner-only permissions.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Schema changes ship as embedded up/down SQL pairs and are
// additive-only: new columns are nullable or defaulted, and nothing is
// dropped or renamed, so an older binary can still read a newer file.
package database
