package httpadapter

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/memstore"
    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/wallet"
    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    auditsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/audit"
    forensicsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/forensic"
    merchantsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/merchant"
    treasurysvc "github.com/jkumari08/vigil-audit-protocol/internal/services/treasury"
    "github.com/jkumari08/vigil-audit-protocol/internal/workers/auditrunner"
    "github.com/jkumari08/vigil-audit-protocol/internal/x402"
)

const (
    testTxHash = "0xd5ef5ba9fcba03c55d35cf7b02d0bfba4a37ea1c3d2e8f19a7b6c8d4e5f21a3b"
    testPayer  = "0x1b7e3f9a5c2d8e4f6a0b9c1d3e5f7a2b4c6d8e0f"
    agentAddr  = "0x9f8a2b4c6d1e3f5a7b9c0d2e4f6a8b1c3d5e7f90"
)

type harness struct {
    srv      *httptest.Server
    treasury *treasurysvc.Service
    gate     x402.GateConfig
}

// newHarness assembles the full server against in-memory stores. The audit
// runner's gate URL loops back into this same server, mirroring the
// single-binary deployment.
func newHarness(t *testing.T) *harness {
    t.Helper()
    log := slog.New(slog.NewTextHandler(io.Discard, nil))

    tr, err := treasurysvc.New(context.Background(), treasurysvc.DefaultConfig(), memstore.NewLedgerStore(), log)
    require.NoError(t, err)
    forensic := forensicsvc.New("")
    merchant := merchantsvc.New(memstore.NewMerchantStore())

    gate := x402.GateConfig{
        Network:           "base-mainnet",
        Amount:            "0.01",
        PayTo:             "0x0g-compute-node-vigil-audit-protocol",
        Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
        MaxTimeoutSeconds: 300,
        ServiceName:       "Vigil Forensic API",
        ServiceVersion:    "1.0.0",
    }

    var router http.Handler
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        router.ServeHTTP(w, r)
    }))
    t.Cleanup(srv.Close)

    gateway := wallet.NewSimulated(log)
    client := x402.NewClient(agentAddr, x402.StubSigner{}, log)
    runner := auditsvc.New(auditsvc.DefaultConfig(srv.URL+"/protected-resource", testPayer), gateway, client, tr, log)
    registry := auditrunner.NewRegistry(8)

    // Background workers run like the production wiring does; the wait path
    // must still execute each run exactly once.
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    auditrunner.Start(ctx, registry, runner, 2, log)

    server := New(tr, forensic, merchant, registry, runner, Options{
        Gate:         gate,
        FeeAmount:    1.0,
        FeePriceFiat: 0.42,
        AgentWallet:  agentAddr,
    }, log)
    router = server.Routes()

    return &harness{srv: srv, treasury: tr, gate: gate}
}

func (h *harness) postJSON(t *testing.T, path string, body any) *http.Response {
    t.Helper()
    raw, err := json.Marshal(body)
    require.NoError(t, err)
    resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
    require.NoError(t, err)
    return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
    t.Helper()
    defer resp.Body.Close()
    var out T
    require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
    return out
}

func TestHealthz(t *testing.T) {
    h := newHarness(t)
    resp, err := http.Get(h.srv.URL + "/healthz")
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestPaymentConfirmationBooksIncome(t *testing.T) {
    h := newHarness(t)
    resp := h.postJSON(t, "/payment-confirmations", map[string]string{
        "resourceId":    testTxHash,
        "paymentTxRef":  "0xfeepayment",
        "payerIdentity": testPayer,
    })
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.True(t, decode[map[string]bool](t, resp)["ok"])

    state := h.treasury.Snapshot()
    assert.InDelta(t, 0.42, state.Revenue, 1e-9)
    assert.Equal(t, 1, state.Audits)
    require.Len(t, state.Entries, 1)
    assert.Equal(t, domain.DirectionIn, state.Entries[0].Direction)
    assert.Equal(t, testPayer, state.Entries[0].Counterparty)
}

func TestPaymentConfirmationValidation(t *testing.T) {
    h := newHarness(t)
    cases := map[string]map[string]string{
        "bad resource": {"resourceId": "0x123", "paymentTxRef": "0xr", "payerIdentity": testPayer},
        "no txref":     {"resourceId": testTxHash, "payerIdentity": testPayer},
        "bad payer":    {"resourceId": testTxHash, "paymentTxRef": "0xr", "payerIdentity": "nope"},
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            resp := h.postJSON(t, "/payment-confirmations", body)
            assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
            assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
        })
    }
    assert.Empty(t, h.treasury.Snapshot().Entries)
}

func TestProtectedResourceChallenge(t *testing.T) {
    h := newHarness(t)
    resp := h.postJSON(t, "/protected-resource", map[string]string{
        "resourceId": testTxHash,
        "phase":      "initial",
    })
    require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

    ch := decode[x402.Challenge](t, resp)
    require.NoError(t, ch.Validate())
    assert.Equal(t, x402.Version, ch.Version)
    assert.Equal(t, "0.01", ch.MaxAmountRequired)
    assert.Equal(t, h.gate.PayTo, ch.PayTo)
    assert.Empty(t, h.treasury.Snapshot().Entries, "a challenge books nothing")
}

func TestProtectedResourceMissingPayment(t *testing.T) {
    h := newHarness(t)
    resp := h.postJSON(t, "/protected-resource", map[string]string{
        "resourceId": testTxHash,
        "phase":      "paid",
    })
    require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
    assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
    assert.Empty(t, h.treasury.Snapshot().Entries, "an unpaid retry books nothing")
}

func TestProtectedResourceMalformedPayment(t *testing.T) {
    h := newHarness(t)
    raw, _ := json.Marshal(map[string]string{"resourceId": testTxHash, "phase": "paid"})
    req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/protected-resource", bytes.NewReader(raw))
    require.NoError(t, err)
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set(x402.HeaderPayment, "{not json")

    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedResourcePaidServesReportAndSettles(t *testing.T) {
    h := newHarness(t)

    payload, err := x402.BuildPayload(context.Background(),
        h.gate.Challenge("/protected-resource"), agentAddr, x402.StubSigner{}, time.Now())
    require.NoError(t, err)
    header, err := json.Marshal(payload)
    require.NoError(t, err)

    raw, _ := json.Marshal(map[string]string{"resourceId": testTxHash, "phase": "paid"})
    req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/protected-resource", bytes.NewReader(raw))
    require.NoError(t, err)
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set(x402.HeaderPayment, string(header))
    req.Header.Set(x402.HeaderPaymentVersion, x402.Version)

    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    require.Equal(t, http.StatusOK, resp.StatusCode)

    report := decode[domain.AuditReport](t, resp)
    assert.Equal(t, testTxHash, report.TxHash)
    assert.NotEmpty(t, report.PaymentTxRef, "settlement tx attached to the report")

    state := h.treasury.Snapshot()
    require.Len(t, state.Entries, 1, "exactly one settlement entry")
    out := state.Entries[0]
    assert.Equal(t, domain.DirectionOut, out.Direction)
    assert.Equal(t, -0.01, out.Amount)
    assert.Equal(t, h.gate.PayTo, out.Counterparty)
    assert.InDelta(t, 0.01, state.InfraCost, 1e-9)
    assert.InDelta(t, 0.99, state.Balances["USDC"], 1e-9)
}

func TestProtectedResourceBadPhase(t *testing.T) {
    h := newHarness(t)
    resp := h.postJSON(t, "/protected-resource", map[string]string{
        "resourceId": testTxHash,
        "phase":      "sideways",
    })
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLedgerView(t *testing.T) {
    h := newHarness(t)
    ctx := context.Background()
    _, err := h.treasury.RecordIncome(ctx, 1, 0.42, testPayer, "0xa")
    require.NoError(t, err)
    _, err = h.treasury.RecordExpense(ctx, 0.01, "0xnode", "0xb")
    require.NoError(t, err)

    resp, err := http.Get(h.srv.URL + "/ledger")
    require.NoError(t, err)
    require.Equal(t, http.StatusOK, resp.StatusCode)

    view := decode[map[string]any](t, resp)
    assert.InDelta(t, 0.42, view["revenue"].(float64), 1e-9)
    assert.InDelta(t, 0.01, view["infraCost"].(float64), 1e-9)
    assert.InDelta(t, 0.41, view["netProfitOrLoss"].(float64), 1e-9)
    assert.InDelta(t, 0.41/0.42*100, view["marginPercent"].(float64), 1e-6)
    assert.InDelta(t, 0.42, view["adiPriceUSD"].(float64), 1e-9)
    assert.Equal(t, agentAddr, view["agentWallet"])
    assert.Len(t, view["transactions"].([]any), 2)
}

func TestLedgerPostAndReset(t *testing.T) {
    h := newHarness(t)

    resp := h.postJSON(t, "/ledger", map[string]any{
        "amount": 2.0, "payer": testPayer, "txRef": "0xmanual",
    })
    require.Equal(t, http.StatusOK, resp.StatusCode)
    entry := decode[domain.LedgerEntry](t, resp)
    assert.Equal(t, domain.DirectionIn, entry.Direction)
    assert.Equal(t, 2.0, entry.Amount)

    resp = h.postJSON(t, "/ledger", map[string]any{"amount": -1.0})
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

    resp = h.postJSON(t, "/ledger/reset", nil)
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, 0, h.treasury.Snapshot().Audits)
    assert.Empty(t, h.treasury.Snapshot().Entries)
}

func TestMerchantEndpoints(t *testing.T) {
    h := newHarness(t)

    resp, err := http.Get(h.srv.URL + "/merchant")
    require.NoError(t, err)
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
    resp.Body.Close()

    resp = h.postJSON(t, "/merchant", map[string]string{
        "businessName":     "Acme Forensics",
        "receivingAddress": testPayer,
    })
    require.Equal(t, http.StatusOK, resp.StatusCode)
    saved := decode[domain.MerchantConfig](t, resp)
    assert.Equal(t, "ADI", saved.SettlementToken)
    assert.NotEmpty(t, saved.EmbedCode)

    resp = h.postJSON(t, "/merchant", map[string]string{"businessName": "No Address"})
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

    resp, err = http.Get(h.srv.URL + "/merchant")
    require.NoError(t, err)
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "Acme Forensics", decode[domain.MerchantConfig](t, resp).BusinessName)
}

func TestAuditWaitRunsEndToEnd(t *testing.T) {
    h := newHarness(t)

    resp := h.postJSON(t, "/audits?wait=true", map[string]string{
        "txHash": testTxHash,
        "payer":  testPayer,
    })
    require.Equal(t, http.StatusOK, resp.StatusCode)

    run := decode[auditrunner.Run](t, resp)
    assert.Equal(t, auditrunner.StatusCompleted, run.Status)
    assert.Equal(t, auditsvc.StateFulfilled, run.State)
    require.NotNil(t, run.Report)
    assert.Equal(t, testTxHash, run.Report.TxHash)
    assert.NotEmpty(t, run.Events)

    // The harness workers had a chance to double-process; give them a
    // window before checking the books.
    time.Sleep(200 * time.Millisecond)

    // Loopback deployment: the fee income and the gate settlement land in
    // the same ledger, exactly once each.
    state := h.treasury.Snapshot()
    assert.Equal(t, 1, state.Audits)
    assert.InDelta(t, 0.42, state.Revenue, 1e-9)
    assert.InDelta(t, 0.01, state.InfraCost, 1e-9)
    require.Len(t, state.Entries, 2)
    assert.Equal(t, domain.DirectionOut, state.Entries[0].Direction)
    assert.Equal(t, domain.DirectionIn, state.Entries[1].Direction)
}

func TestAuditAsyncAndLookup(t *testing.T) {
    h := newHarness(t)

    resp := h.postJSON(t, "/audits", map[string]string{
        "txHash": testTxHash,
        "payer":  testPayer,
    })
    require.Equal(t, http.StatusAccepted, resp.StatusCode)
    id := decode[map[string]string](t, resp)["auditId"]
    require.NotEmpty(t, id)

    // The background workers pick the queued run up and complete it.
    require.Eventually(t, func() bool {
        resp, err := http.Get(h.srv.URL + "/audits/" + id)
        if err != nil {
            return false
        }
        return decode[auditrunner.Run](t, resp).Status == auditrunner.StatusCompleted
    }, 10*time.Second, 50*time.Millisecond)

    state := h.treasury.Snapshot()
    assert.Equal(t, 1, state.Audits, "queued run executed once")
    require.Len(t, state.Entries, 2)

    resp, err := http.Get(h.srv.URL + "/audits/does-not-exist")
    require.NoError(t, err)
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditValidation(t *testing.T) {
    h := newHarness(t)

    resp := h.postJSON(t, "/audits", map[string]string{"txHash": "0x123", "payer": testPayer})
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

    resp = h.postJSON(t, "/audits", map[string]string{"txHash": testTxHash, "payer": "bad"})
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
