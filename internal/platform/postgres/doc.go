// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver. Every store accepts a store.DBTX so the
// same code runs on a *sql.DB or inside a transaction, and maps driver errors
// to the store sentinels. Schema migrations are embedded and run with goose.
package postgres
