package postgres

import (
    "context"
    "encoding/json"
    "errors"

    "github.com/jackc/pgx/v5"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

// LedgerStore implementation.

func (db *DB) Load(ctx context.Context) (domain.TreasuryState, bool, error) {
    var state domain.TreasuryState
    var balances []byte
    err := db.Pool.QueryRow(ctx, `
        SELECT revenue, infra_cost, audits, balances FROM treasury_aggregates WHERE id = 1
    `).Scan(&state.Revenue, &state.InfraCost, &state.Audits, &balances)
    if errors.Is(err, pgx.ErrNoRows) {
        return domain.TreasuryState{}, false, nil
    }
    if err != nil {
        return domain.TreasuryState{}, false, err
    }
    if err := json.Unmarshal(balances, &state.Balances); err != nil {
        return domain.TreasuryState{}, false, err
    }

    rows, err := db.Pool.Query(ctx, `
        SELECT id, ts, direction, amount, token, network, counterparty, memo, tx_ref
        FROM ledger_entries ORDER BY seq DESC
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

func (db *DB) Append(ctx context.Context, state domain.TreasuryState, entry domain.LedgerEntry) error {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return err
    }
    defer func() {
        if err != nil {
            _ = tx.Rollback(ctx)
        } else {
            _ = tx.Commit(ctx)
        }
    }()

    if _, err = tx.Exec(ctx, `
        INSERT INTO ledger_entries (id, ts, direction, amount, token, network, counterparty, memo, tx_ref)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, entry.ID, entry.Time, string(entry.Direction), entry.Amount, entry.Token, entry.Network, entry.Counterparty, entry.Memo, entry.TxRef); err != nil {
        return err
    }
    err = upsertAggregates(ctx, tx, state)
    return err
}

func (db *DB) Replace(ctx context.Context, state domain.TreasuryState) error {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return err
    }
    defer func() {
        if err != nil {
            _ = tx.Rollback(ctx)
        } else {
            _ = tx.Commit(ctx)
        }
    }()

    if _, err = tx.Exec(ctx, `DELETE FROM ledger_entries`); err != nil {
        return err
    }
    for i := len(state.Entries) - 1; i >= 0; i-- {
        e := state.Entries[i]
        if _, err = tx.Exec(ctx, `
            INSERT INTO ledger_entries (id, ts, direction, amount, token, network, counterparty, memo, tx_ref)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        `, e.ID, e.Time, string(e.Direction), e.Amount, e.Token, e.Network, e.Counterparty, e.Memo, e.TxRef); err != nil {
            return err
        }
    }
    err = upsertAggregates(ctx, tx, state)
    return err
}

func upsertAggregates(ctx context.Context, tx pgx.Tx, state domain.TreasuryState) error {
    balances, err := json.Marshal(state.Balances)
    if err != nil {
        return err
    }
    _, err = tx.Exec(ctx, `
        INSERT INTO treasury_aggregates (id, revenue, infra_cost, audits, balances)
        VALUES (1, $1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            revenue = EXCLUDED.revenue,
            infra_cost = EXCLUDED.infra_cost,
            audits = EXCLUDED.audits,
            balances = EXCLUDED.balances
    `, state.Revenue, state.InfraCost, state.Audits, balances)
    return err
}
