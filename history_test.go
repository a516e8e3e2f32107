// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlsolve

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestHistoryRecordsIterations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	hist, err := NewHistory(db)
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()

	res := fit(t, rosenbrock(), Options{History: hist}, []float64{-1.2, 1})
	if res.Status != Optimal {
		t.Fatalf("status = %v", res.Status)
	}

	var rows int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM iterations WHERE fit = 1`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows == 0 || rows > res.NumIter {
		t.Fatalf("recorded %d rows for %d iterations", rows, res.NumIter)
	}

	var phase, flag string
	if err := db.QueryRow(
		`SELECT phase, flag FROM iterations WHERE fit = 1 ORDER BY iter DESC LIMIT 1`).
		Scan(&phase, &flag); err != nil {
		t.Fatal(err)
	}
	if phase != "optimality" || flag != "accepted" {
		t.Fatalf("last row = %s/%s", phase, flag)
	}

	// a second fit on the same recorder gets its own id
	res = fit(t, rosenbrock(), Options{History: hist}, []float64{2, 2})
	if res.Status != Optimal {
		t.Fatalf("status = %v", res.Status)
	}
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM iterations WHERE fit = 2`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows == 0 {
		t.Fatal("second fit recorded nothing")
	}
}
