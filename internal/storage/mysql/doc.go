// Package mysql persists proof receipts. It provides an in-memory repository
// with an optional append-only log for development, a MySQL repository, and
// the schema migrations shared with the job store.
package mysql
