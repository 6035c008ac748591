// Package db carries the SQL migrations applied by cmd/migrator.
package db

import "embed"

// Migrations holds the goose migration files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
