// Package memstore provides process-lifetime stores for environments without
// durable local storage. Nothing survives a restart; that is the documented
// contract, not an accident.
package memstore

import (
    "context"
    "sync"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

type LedgerStore struct {
    mu    sync.Mutex
    state *domain.TreasuryState
}

func NewLedgerStore() *LedgerStore { return &LedgerStore{} }

func (s *LedgerStore) Load(ctx context.Context) (domain.TreasuryState, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.state == nil {
        return domain.TreasuryState{}, false, nil
    }
    return s.state.Clone(), true, nil
}

func (s *LedgerStore) Append(ctx context.Context, state domain.TreasuryState, entry domain.LedgerEntry) error {
    return s.Replace(ctx, state)
}

func (s *LedgerStore) Replace(ctx context.Context, state domain.TreasuryState) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    c := state.Clone()
    s.state = &c
    return nil
}

type MerchantStore struct {
    mu  sync.Mutex
    cfg *domain.MerchantConfig
}

func NewMerchantStore() *MerchantStore { return &MerchantStore{} }

func (s *MerchantStore) Get(ctx context.Context) (domain.MerchantConfig, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.cfg == nil {
        return domain.MerchantConfig{}, false, nil
    }
    return *s.cfg, true, nil
}

func (s *MerchantStore) Put(ctx context.Context, cfg domain.MerchantConfig) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.cfg = &cfg
    return nil
}
