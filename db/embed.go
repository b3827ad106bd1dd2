// Package db embeds the database schema.
package db

import _ "embed"

// Schema contains the idempotent DDL for all order-service tables.
//
//go:embed migrations/001_schema.sql
var Schema string
