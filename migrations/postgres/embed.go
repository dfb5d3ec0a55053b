// Package migrations embebe el esquema SQL de Postgres.
package migrations

import "embed"

// SchemaFS contiene las migraciones del store, aplicadas en orden lexicográfico.
//
//go:embed schema/*.sql
var SchemaFS embed.FS

// SchemaDir es el directorio dentro de SchemaFS.
const SchemaDir = "schema"
