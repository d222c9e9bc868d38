package db

import "embed"

// EmbedMigrations holds the ledger schema migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
