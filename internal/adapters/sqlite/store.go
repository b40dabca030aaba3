// Package sqlite persists the ledger in an embedded SQLite database via
// database/sql. Entries are appended incrementally; aggregates live in a
// single row.
package sqlite

import (
    "context"
    "database/sql"
    "encoding/json"
    "fmt"

    _ "modernc.org/sqlite"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	ts TIMESTAMP NOT NULL,
	direction TEXT NOT NULL,
	amount REAL NOT NULL,
	token TEXT NOT NULL,
	network TEXT NOT NULL,
	counterparty TEXT NOT NULL,
	memo TEXT NOT NULL,
	tx_ref TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS treasury_aggregates (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	revenue REAL NOT NULL,
	infra_cost REAL NOT NULL,
	audits INTEGER NOT NULL,
	balances TEXT NOT NULL
);
`

type Store struct {
    db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
    db, err := sql.Open("sqlite", path)
    if err != nil {
        return nil, err
    }
    // modernc sqlite serializes writes; one connection avoids lock churn.
    db.SetMaxOpenConns(1)
    if _, err := db.Exec(schema); err != nil {
        db.Close()
        return nil, fmt.Errorf("sqlite: init schema: %w", err)
    }
    return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context) (domain.TreasuryState, bool, error) {
    var state domain.TreasuryState
    var balances string
    err := s.db.QueryRowContext(ctx, `
		SELECT revenue, infra_cost, audits, balances FROM treasury_aggregates WHERE id = 1
	`).Scan(&state.Revenue, &state.InfraCost, &state.Audits, &balances)
    if err == sql.ErrNoRows {
        return domain.TreasuryState{}, false, nil
    }
    if err != nil {
        return domain.TreasuryState{}, false, err
    }
    if err := json.Unmarshal([]byte(balances), &state.Balances); err != nil {
        return domain.TreasuryState{}, false, err
    }

    rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, direction, amount, token, network, counterparty, memo, tx_ref
		FROM ledger_entries ORDER BY rowid DESC
	`)
    if err != nil {
        return domain.TreasuryState{}, false, err
    }
    defer rows.Close()
    for rows.Next() {
        var e domain.LedgerEntry
        if err := rows.Scan(&e.ID, &e.Time, &e.Direction, &e.Amount, &e.Token, &e.Network, &e.Counterparty, &e.Memo, &e.TxRef); err != nil {
            return domain.TreasuryState{}, false, err
        }
        state.Entries = append(state.Entries, e)
    }
    if state.Entries == nil {
        state.Entries = []domain.LedgerEntry{}
    }
    return state, true, rows.Err()
}

func (s *Store) Append(ctx context.Context, state domain.TreasuryState, entry domain.LedgerEntry) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()

    if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, ts, direction, amount, token, network, counterparty, memo, tx_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Time, string(entry.Direction), entry.Amount, entry.Token, entry.Network, entry.Counterparty, entry.Memo, entry.TxRef); err != nil {
        return err
    }
    if err := upsertAggregates(ctx, tx, state); err != nil {
        return err
    }
    return tx.Commit()
}

func (s *Store) Replace(ctx context.Context, state domain.TreasuryState) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()

    if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
        return err
    }
    // Replace is used for reset; entries in state are written back in causal
    // order so a later Load reproduces the same sequence.
    for i := len(state.Entries) - 1; i >= 0; i-- {
        e := state.Entries[i]
        if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, ts, direction, amount, token, network, counterparty, memo, tx_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Time, string(e.Direction), e.Amount, e.Token, e.Network, e.Counterparty, e.Memo, e.TxRef); err != nil {
            return err
        }
    }
    if err := upsertAggregates(ctx, tx, state); err != nil {
        return err
    }
    return tx.Commit()
}

func upsertAggregates(ctx context.Context, tx *sql.Tx, state domain.TreasuryState) error {
    balances, err := json.Marshal(state.Balances)
    if err != nil {
        return err
    }
    _, err = tx.ExecContext(ctx, `
		INSERT INTO treasury_aggregates (id, revenue, infra_cost, audits, balances)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			revenue = excluded.revenue,
			infra_cost = excluded.infra_cost,
			audits = excluded.audits,
			balances = excluded.balances
	`, state.Revenue, state.InfraCost, state.Audits, string(balances))
    return err
}
