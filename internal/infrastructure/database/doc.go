// Package database opens the gateway's SQLite store and applies its schema
// migrations.
//
// The store backs the write audit trail. The connection uses WAL mode and a
// busy timeout, a single pooled connection and 0600 file permissions.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql and
// .down.sql, passed in as an fs.FS (normally migrations.FS):
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default.
package database
