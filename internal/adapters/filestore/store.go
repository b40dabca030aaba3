// Package filestore persists state as JSON snapshots on local disk, rewritten
// after every mutation and read back at process start.
package filestore

import (
    "context"
    "encoding/json"
    "os"
    "sync"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

type LedgerStore struct {
    path string
    mu   sync.Mutex
}

func NewLedgerStore(path string) *LedgerStore { return &LedgerStore{path: path} }

func (s *LedgerStore) Load(ctx context.Context) (domain.TreasuryState, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    raw, err := os.ReadFile(s.path)
    if os.IsNotExist(err) {
        return domain.TreasuryState{}, false, nil
    }
    if err != nil {
        return domain.TreasuryState{}, false, err
    }
    var state domain.TreasuryState
    if err := json.Unmarshal(raw, &state); err != nil {
        return domain.TreasuryState{}, false, err
    }
    return state, true, nil
}

func (s *LedgerStore) Append(ctx context.Context, state domain.TreasuryState, entry domain.LedgerEntry) error {
    return s.Replace(ctx, state)
}

func (s *LedgerStore) Replace(ctx context.Context, state domain.TreasuryState) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    raw, err := json.MarshalIndent(state, "", "  ")
    if err != nil {
        return err
    }
    return os.WriteFile(s.path, raw, 0600)
}

type MerchantStore struct {
    path string
    mu   sync.Mutex
}

func NewMerchantStore(path string) *MerchantStore { return &MerchantStore{path: path} }

func (s *MerchantStore) Get(ctx context.Context) (domain.MerchantConfig, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    raw, err := os.ReadFile(s.path)
    if os.IsNotExist(err) {
        return domain.MerchantConfig{}, false, nil
    }
    if err != nil {
        return domain.MerchantConfig{}, false, err
    }
    var cfg domain.MerchantConfig
    if err := json.Unmarshal(raw, &cfg); err != nil {
        return domain.MerchantConfig{}, false, err
    }
    return cfg, true, nil
}

func (s *MerchantStore) Put(ctx context.Context, cfg domain.MerchantConfig) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    raw, err := json.MarshalIndent(cfg, "", "  ")
    if err != nil {
        return err
    }
    return os.WriteFile(s.path, raw, 0600)
}
