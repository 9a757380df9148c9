// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

// Package db wraps a sqlite database handle with retrying transactions and
// schema versioning.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/algorand/go-twochain/logging"
)

const (
	// busyTimeoutMs is how long sqlite waits on a lock held by another
	// connection before returning SQLITE_BUSY.
	busyTimeoutMs = 1000

	maxTxRetries = 1000

	slowTx = time.Second
)

// TxFn is the body of a transaction. It may run more than once when the
// transaction is retried.
type TxFn func(tx *sql.Tx) error

// Migration upgrades the schema by one version.
type Migration TxFn

// An Accessor manages a sqlite database handle.
type Accessor struct {
	Handle   *sql.DB
	readOnly bool
}

// MakeAccessor opens dbfilename. In-memory databases are shared by name
// within the process and disappear with their last connection.
func MakeAccessor(dbfilename string, readOnly bool, inMemory bool) (Accessor, error) {
	acc := Accessor{readOnly: readOnly}
	var err error
	acc.Handle, err = sql.Open("sqlite3", URI(dbfilename, readOnly, inMemory)+"&_journal_mode=wal")
	if err != nil {
		return acc, err
	}
	if inMemory {
		acc.Handle.SetMaxIdleConns(1)
		acc.Handle.SetConnMaxIdleTime(0)
	}
	if err = acc.Handle.Ping(); err != nil {
		acc.Handle.Close()
	}
	return acc, err
}

// Close closes the connection.
func (db Accessor) Close() {
	db.Handle.Close()
}

// Atomic runs fn in a serializable transaction.
func (db Accessor) Atomic(fnDescription string, fn TxFn) error {
	return db.AtomicContext(context.Background(), fnDescription, fn)
}

// AtomicContext is Atomic bounded by ctx. Transactions failing on a locked
// or busy database are retried.
func (db Accessor) AtomicContext(ctx context.Context, fnDescription string, fn TxFn) (err error) {
	log := logging.Base().With("description", fnDescription)
	start := time.Now()
	defer func() {
		if d := time.Since(start); d > slowTx {
			log.Warnf("db tx took %v", d)
		}
	}()

	conn, err := db.Handle.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for i := 0; i < maxTxRetries; i++ {
		if i > 0 {
			log.Debugf("db tx retry %d: %v", i, err)
		}
		err = db.runTx(ctx, conn, fn)
		if !dbretry(err) {
			return err
		}
	}
	log.Errorf("db tx gave up after %d retries: %v", maxTxRetries, err)
	return err
}

func (db Accessor) runTx(ctx context.Context, conn *sql.Conn, fn TxFn) (err error) {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: db.readOnly})
	if err != nil {
		return err
	}
	defer func() {
		// the sql package leaves a panicking transaction open
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion reads the schema version stored in the database header.
func SchemaVersion(tx *sql.Tx) (version int, err error) {
	err = tx.QueryRow("pragma user_version").Scan(&version)
	return
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(fmt.Sprintf("pragma user_version = %d", version))
	return err
}

// Migrate applies the migrations the database has not seen yet in one
// transaction. migrations[i] moves the schema from version i to i+1.
func (db Accessor) Migrate(fnDescription string, migrations []Migration) error {
	return db.Atomic(fnDescription, func(tx *sql.Tx) error {
		version, err := SchemaVersion(tx)
		if err != nil {
			return err
		}
		if version > len(migrations) {
			return fmt.Errorf("%s: schema version %d is newer than this binary (%d)", fnDescription, version, len(migrations))
		}
		for v := version; v < len(migrations); v++ {
			if err := migrations[v](tx); err != nil {
				return fmt.Errorf("%s: migrating to version %d: %w", fnDescription, v+1, err)
			}
		}
		return setSchemaVersion(tx, len(migrations))
	})
}

// URI returns the sqlite URI for filename.
func URI(filename string, readOnly bool, memory bool) string {
	uri := fmt.Sprintf("file:%s?_busy_timeout=%d&_synchronous=full", filename, busyTimeoutMs)
	if !readOnly {
		uri += "&_txlock=immediate"
	}
	if memory {
		uri += "&mode=memory&cache=shared"
	}
	return uri
}

// dbretry reports whether err may clear on retry.
func dbretry(err error) bool {
	serr, ok := err.(sqlite3.Error)
	return ok && (serr.Code == sqlite3.ErrLocked || serr.Code == sqlite3.ErrBusy)
}
