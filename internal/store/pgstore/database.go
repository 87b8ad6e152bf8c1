package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// maintenanceDB is the database every cluster carries and that we connect to for administration.
const maintenanceDB = "postgres"

// EnsureDatabase connects to the cluster's maintenance database and creates name if it is missing.
func EnsureDatabase(ctx context.Context, dsn, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("database name is required")
	}
	metaDSN, err := WithDBName(dsn, maintenanceDB)
	if err != nil {
		return fmt.Errorf("compose maintenance DSN: %w", err)
	}
	conn, err := pgx.Connect(ctx, metaDSN)
	if err != nil {
		return fmt.Errorf("connect maintenance db: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	if err := conn.QueryRow(ctx, q, name).Scan(&exists); err != nil {
		return fmt.Errorf("lookup database %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	return nil
}
