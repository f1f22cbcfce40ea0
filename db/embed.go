// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for the storefront tables. Applied idempotently by
// repository.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
