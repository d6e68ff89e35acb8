// Package postgres provides the PostgreSQL connection pool and the
// migration runner shared by the governance feature packages. Each
// feature package owns its schema and exports a []Migration; the server
// binary collects them and hands them to RunMigrations at startup.
package postgres
