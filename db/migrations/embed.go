// Package dbmigrations exposes embedded SQL migrations for WebhookHub binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into WebhookHub binaries.
//
//go:embed *.sql
var Files embed.FS
