package postgres

import (
	"context"
	"fmt"
	"log"

	"strata/internal/pgquery"
)

// ConnectFunc opens a session against the named database. Databases
// uses it to install extensions on freshly created databases.
type ConnectFunc func(ctx context.Context, dbname string) (*Session, error)

// Databases creates and drops databases. CREATE/DROP DATABASE refuse to
// run inside a transaction block, so the session must have none open.
type Databases struct {
	sess    *Session
	connect ConnectFunc
}

// NewDatabases creates a database admin over sess. connect may be nil
// when PostGIS installation is never requested.
func NewDatabases(sess *Session, connect ConnectFunc) *Databases {
	return &Databases{sess: sess, connect: connect}
}

// Create creates the database. With withPostGIS set it then connects to
// the new database and installs the postgis extension there.
func (d *Databases) Create(ctx context.Context, name string, withPostGIS bool) error {
	if !pgquery.ValidIdentifier(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	if d.sess.InTx() {
		return fmt.Errorf("create database cannot run inside a transaction")
	}

	if _, err := d.sess.Exec(ctx, "create database "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	log.Printf("Created database %s", name)

	if !withPostGIS {
		return nil
	}
	if d.connect == nil {
		return fmt.Errorf("cannot install postgis in %s: no connect function configured", name)
	}

	sess, err := d.connect(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to connect to new database %s: %w", name, err)
	}
	defer sess.Close(ctx)

	if _, err := sess.Exec(ctx, "create extension postgis"); err != nil {
		return fmt.Errorf("failed to install postgis in %s: %w", name, err)
	}
	log.Printf("Installed postgis in database %s", name)
	return nil
}

// Drop removes the database.
func (d *Databases) Drop(ctx context.Context, name string) error {
	if !pgquery.ValidIdentifier(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	if d.sess.InTx() {
		return fmt.Errorf("drop database cannot run inside a transaction")
	}

	if _, err := d.sess.Exec(ctx, "drop database "+quoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	log.Printf("Dropped database %s", name)
	return nil
}
