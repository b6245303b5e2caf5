// Package db embeds the storefront schema so migrations ship inside the
// binary and run on startup without external migration files.
package db

import _ "embed"

// Schema holds the DDL for the catalog, cart, order and API key tables.
//
//go:embed migrations/001_schema.sql
var Schema string
