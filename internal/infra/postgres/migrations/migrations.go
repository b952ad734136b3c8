package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema for topics, questions, options and progress.
var Migrations = migrate.NewMigrations()
