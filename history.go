// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

import (
	"database/sql"
	"sync/atomic"
)

// History records one row per outer iteration into a SQL database,
// typically SQLite. All fits sharing one History write into the same
// table and are told apart by a monotone fit id, so a single recorder
// can serve concurrent workspaces as long as the driver is safe for
// concurrent use (mattn/go-sqlite3 is).
type History struct {
	db     *sql.DB
	insert *sql.Stmt
	fits   int64
}

const historySchema = `
CREATE TABLE IF NOT EXISTS iterations (
	fit           INTEGER NOT NULL,
	iter          INTEGER NOT NULL,
	phase         TEXT    NOT NULL,
	objective     REAL,
	infeasibility REAL,
	stationarity  REAL,
	parameter     REAL,
	alpha         REAL,
	flag          TEXT,
	PRIMARY KEY (fit, iter)
)`

const historyInsert = `
INSERT OR REPLACE INTO iterations
	(fit, iter, phase, objective, infeasibility, stationarity, parameter, alpha, flag)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// NewHistory prepares the iteration table on db. The caller keeps
// ownership of db; Close releases only the prepared statement.
func NewHistory(db *sql.DB) (*History, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, err
	}
	insert, err := db.Prepare(historyInsert)
	if err != nil {
		return nil, err
	}
	return &History{db: db, insert: insert}, nil
}

// begin claims a fresh fit id.
func (h *History) begin() int64 {
	return atomic.AddInt64(&h.fits, 1)
}

func (h *History) record(fit int64, iter int, phase string,
	objective, infeasibility, stationarity, parameter, alpha float64, flag string) error {
	_, err := h.insert.Exec(fit, iter, phase,
		objective, infeasibility, stationarity, parameter, alpha, flag)
	return err
}

// Close releases the prepared statement.
func (h *History) Close() error {
	return h.insert.Close()
}
