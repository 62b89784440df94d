// Package migrations embeds the hub's SQL migration files into the binary.
//
// The files are compiled into the executable, so the hub can create its
// tables without the SQL files present on disk:
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
