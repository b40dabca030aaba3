// Package treasury owns the append-only accounting ledger: value in, value
// out, derived aggregates. It knows nothing about payment protocols.
package treasury

import (
    "context"
    "fmt"
    "log/slog"
    "math"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
)

// Config names the assets the two entry kinds move. Income arrives as the
// audit fee token; expenses leave as the settlement token spent on gated
// calls.
type Config struct {
    IncomeToken    string
    IncomeNetwork  string
    IncomeMemo     string
    ExpenseToken   string
    ExpenseNetwork string
    ExpenseMemo    string
}

func DefaultConfig() Config {
    return Config{
        IncomeToken:    "ADI",
        IncomeNetwork:  "ADI Testnet",
        IncomeMemo:     "Audit fee",
        ExpenseToken:   "USDC",
        ExpenseNetwork: "Base",
        ExpenseMemo:    "x402 compute",
    }
}

// Service is the exclusive owner of the treasury state. All mutation happens
// through RecordIncome, RecordExpense and Reset; every mutation is persisted
// through the injected store. A store write failure is logged and surfaced as
// a warning, never rolled back: the in-memory ledger is the source of truth
// and durability is at-least-once.
type Service struct {
    cfg   Config
    store ports.LedgerStore
    log   *slog.Logger

    mu    sync.Mutex
    state domain.TreasuryState

    now   func() time.Time
    newID func() string
}

// New loads previously persisted state from store, falling back to the
// seeded default when none exists.
func New(ctx context.Context, cfg Config, store ports.LedgerStore, log *slog.Logger) (*Service, error) {
    state, found, err := store.Load(ctx)
    if err != nil {
        return nil, fmt.Errorf("treasury: load state: %w", err)
    }
    if !found {
        state = domain.DefaultTreasuryState()
    }
    if state.Balances == nil {
        state.Balances = map[string]float64{}
    }
    return &Service{
        cfg:   cfg,
        store: store,
        log:   log,
        state: state,
        now:   time.Now,
        newID: uuid.NewString,
    }, nil
}

func validAmount(a float64) bool {
    return a > 0 && !math.IsNaN(a) && !math.IsInf(a, 0)
}

// RecordIncome books an inbound fee payment: revenue grows by the fiat
// equivalent, the income asset balance by the raw amount, and the completed
// audit counter by one.
func (s *Service) RecordIncome(ctx context.Context, amount, unitPriceFiat float64, payer, txRef string) (domain.LedgerEntry, error) {
    if !validAmount(amount) {
        return domain.LedgerEntry{}, domain.E(domain.KindInvalidInput, "income amount must be positive")
    }

    s.mu.Lock()
    defer s.mu.Unlock()

    entry := domain.LedgerEntry{
        ID:           s.newID(),
        Time:         s.now(),
        Direction:    domain.DirectionIn,
        Amount:       amount,
        Token:        s.cfg.IncomeToken,
        Network:      s.cfg.IncomeNetwork,
        Counterparty: payer,
        Memo:         s.cfg.IncomeMemo,
        TxRef:        txRef,
    }

    s.state.Revenue += amount * unitPriceFiat
    s.state.Balances[s.cfg.IncomeToken] += amount
    s.state.Audits++
    s.prepend(entry)

    s.persist(ctx, entry)
    s.log.Info("income recorded",
        "amount", amount, "token", s.cfg.IncomeToken, "payer", payer, "revenue", s.state.Revenue)
    return entry, nil
}

// RecordExpense books an outbound settlement. Cumulative cost is unclamped;
// the spendable balance is floored at zero so an overspend never displays a
// negative holding.
func (s *Service) RecordExpense(ctx context.Context, amount float64, payee, txRef string) (domain.LedgerEntry, error) {
    if !validAmount(amount) {
        return domain.LedgerEntry{}, domain.E(domain.KindInvalidInput, "expense amount must be positive")
    }

    s.mu.Lock()
    defer s.mu.Unlock()

    entry := domain.LedgerEntry{
        ID:           s.newID(),
        Time:         s.now(),
        Direction:    domain.DirectionOut,
        Amount:       -amount,
        Token:        s.cfg.ExpenseToken,
        Network:      s.cfg.ExpenseNetwork,
        Counterparty: payee,
        Memo:         s.cfg.ExpenseMemo,
        TxRef:        txRef,
    }

    s.state.InfraCost += amount
    s.state.Balances[s.cfg.ExpenseToken] = math.Max(0, s.state.Balances[s.cfg.ExpenseToken]-amount)
    s.prepend(entry)

    s.persist(ctx, entry)
    s.log.Info("expense recorded",
        "amount", amount, "token", s.cfg.ExpenseToken, "payee", payee, "infraCost", s.state.InfraCost)
    return entry, nil
}

// Snapshot returns an independently ownable copy of the current state.
func (s *Service) Snapshot() domain.TreasuryState {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.state.Clone()
}

// Reset replaces state with the seeded initial state. Explicit and audited;
// used only for test and demo reinitialization.
func (s *Service) Reset(ctx context.Context) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.state = domain.DefaultTreasuryState()
    if err := s.store.Replace(ctx, s.state.Clone()); err != nil {
        s.log.Warn("treasury reset persisted state write failed", "err", err)
        return domain.Wrap(domain.KindPersistenceFailure, "reset persistence failed", err)
    }
    s.log.Info("treasury reset")
    return nil
}

// prepend keeps the most-recent-first presentation order.
func (s *Service) prepend(entry domain.LedgerEntry) {
    s.state.Entries = append([]domain.LedgerEntry{entry}, s.state.Entries...)
}

func (s *Service) persist(ctx context.Context, entry domain.LedgerEntry) {
    if err := s.store.Append(ctx, s.state.Clone(), entry); err != nil {
        s.log.Warn("treasury state write failed", "entry", entry.ID, "err", err)
    }
}
