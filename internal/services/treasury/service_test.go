package treasury

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/memstore"
    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store ports.LedgerStore) *Service {
    t.Helper()
    svc, err := New(context.Background(), DefaultConfig(), store, testLogger())
    require.NoError(t, err)
    return svc
}

type failingStore struct{}

func (failingStore) Load(context.Context) (domain.TreasuryState, bool, error) {
    return domain.TreasuryState{}, false, nil
}
func (failingStore) Append(context.Context, domain.TreasuryState, domain.LedgerEntry) error {
    return errors.New("disk gone")
}
func (failingStore) Replace(context.Context, domain.TreasuryState) error {
    return errors.New("disk gone")
}

func TestRecordIncomeAccumulates(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    entry, err := svc.RecordIncome(ctx, 1.0, 0.42, "0xpayer", "0xfee1")
    require.NoError(t, err)
    assert.Equal(t, domain.DirectionIn, entry.Direction)
    assert.Equal(t, 1.0, entry.Amount)
    assert.Equal(t, "ADI", entry.Token)

    _, err = svc.RecordIncome(ctx, 2.5, 0.42, "0xpayer", "0xfee2")
    require.NoError(t, err)

    state := svc.Snapshot()
    assert.InDelta(t, 3.5*0.42, state.Revenue, 1e-9)
    assert.InDelta(t, 3.5, state.Balances["ADI"], 1e-9)
    assert.Equal(t, 2, state.Audits)
    require.Len(t, state.Entries, 2)
    // Most recent first.
    assert.Equal(t, "0xfee2", state.Entries[0].TxRef)
    assert.Equal(t, "0xfee1", state.Entries[1].TxRef)
}

func TestRecordExpenseFloorsBalance(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    // Seeded float is 1.0 USDC; overspend is permitted but never displays
    // a negative holding.
    entry, err := svc.RecordExpense(ctx, 1.75, "0xnode", "0xsettle")
    require.NoError(t, err)
    assert.Equal(t, domain.DirectionOut, entry.Direction)
    assert.Equal(t, -1.75, entry.Amount)

    state := svc.Snapshot()
    assert.Equal(t, 0.0, state.Balances["USDC"])
    assert.InDelta(t, 1.75, state.InfraCost, 1e-9)
    assert.Equal(t, 0, state.Audits, "expenses do not count audits")
}

func TestRecordRejectsInvalidAmounts(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    for _, amount := range []float64{0, -1} {
        _, err := svc.RecordIncome(ctx, amount, 0.42, "0xp", "0xt")
        assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
        _, err = svc.RecordExpense(ctx, amount, "0xp", "0xt")
        assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
    }
    assert.Empty(t, svc.Snapshot().Entries)
}

func TestSnapshotIsIndependent(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    _, err := svc.RecordIncome(ctx, 1.0, 0.42, "0xp", "0xt")
    require.NoError(t, err)

    snap := svc.Snapshot()
    snap.Balances["ADI"] = 999
    snap.Entries[0].Memo = "tampered"

    fresh := svc.Snapshot()
    assert.InDelta(t, 1.0, fresh.Balances["ADI"], 1e-9)
    assert.Equal(t, "Audit fee", fresh.Entries[0].Memo)
}

func TestNetPLAndMargin(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    assert.Equal(t, 0.0, svc.Snapshot().MarginPct(), "zero revenue yields zero margin")

    _, err := svc.RecordIncome(ctx, 1.0, 1.0, "0xp", "0xa")
    require.NoError(t, err)
    _, err = svc.RecordExpense(ctx, 0.3, "0xn", "0xb")
    require.NoError(t, err)

    state := svc.Snapshot()
    assert.InDelta(t, 0.7, state.NetPL(), 1e-9)
    assert.InDelta(t, 70.0, state.MarginPct(), 1e-9)
}

func TestConcurrentIncome(t *testing.T) {
    svc := newService(t, memstore.NewLedgerStore())
    ctx := context.Background()

    const n = 50
    var wg sync.WaitGroup
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := svc.RecordIncome(ctx, 1.0, 0.42, "0xp", "0xt")
            assert.NoError(t, err)
        }()
    }
    wg.Wait()

    state := svc.Snapshot()
    assert.InDelta(t, n*0.42, state.Revenue, 1e-6)
    assert.Equal(t, n, state.Audits)
    assert.Len(t, state.Entries, n)
}

func TestStoreFailureDoesNotBlockAccounting(t *testing.T) {
    svc := newService(t, failingStore{})
    ctx := context.Background()

    _, err := svc.RecordIncome(ctx, 1.0, 0.42, "0xp", "0xt")
    require.NoError(t, err, "in-memory ledger is the source of truth")
    assert.Equal(t, 1, svc.Snapshot().Audits)

    err = svc.Reset(ctx)
    assert.Equal(t, domain.KindPersistenceFailure, domain.KindOf(err))
}

func TestResetRestoresSeededState(t *testing.T) {
    store := memstore.NewLedgerStore()
    svc := newService(t, store)
    ctx := context.Background()

    _, err := svc.RecordIncome(ctx, 5, 0.42, "0xp", "0xt")
    require.NoError(t, err)
    require.NoError(t, svc.Reset(ctx))

    state := svc.Snapshot()
    assert.Equal(t, 0.0, state.Revenue)
    assert.Equal(t, 0, state.Audits)
    assert.InDelta(t, 1.0, state.Balances["USDC"], 1e-9)
    assert.Empty(t, state.Entries)

    // A restart after reset sees the seeded state, not the old ledger.
    reloaded := newService(t, store)
    assert.Equal(t, 0, reloaded.Snapshot().Audits)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
    store := memstore.NewLedgerStore()
    svc := newService(t, store)
    ctx := context.Background()

    _, err := svc.RecordIncome(ctx, 2.0, 0.42, "0xp", "0xt")
    require.NoError(t, err)

    reloaded := newService(t, store)
    state := reloaded.Snapshot()
    assert.InDelta(t, 0.84, state.Revenue, 1e-9)
    assert.Equal(t, 1, state.Audits)
    require.Len(t, state.Entries, 1)
}
