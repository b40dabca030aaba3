package ports

import (
    "context"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

// LedgerStore is the injected durability strategy for treasury state.
// Implementations persist whole snapshots (file, memory) or incremental
// appends (SQL); either way Append must leave the stored state equal to the
// state passed in.
type LedgerStore interface {
    // Load returns the persisted state, found=false when nothing was stored.
    Load(ctx context.Context) (state domain.TreasuryState, found bool, err error)
    // Append persists the state after entry was applied to it.
    Append(ctx context.Context, state domain.TreasuryState, entry domain.LedgerEntry) error
    // Replace overwrites the stored state wholesale (reset).
    Replace(ctx context.Context, state domain.TreasuryState) error
}

// MerchantStore holds the single merchant configuration record.
type MerchantStore interface {
    Get(ctx context.Context) (cfg domain.MerchantConfig, found bool, err error)
    Put(ctx context.Context, cfg domain.MerchantConfig) error
}
