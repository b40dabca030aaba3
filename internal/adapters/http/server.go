// Package httpadapter exposes the audit, ledger, gate and merchant surfaces
// over HTTP. Handlers translate between wire shapes and services; no business
// rules live here.
package httpadapter

import (
    "crypto/rand"
    "encoding/hex"
    "encoding/json"
    "errors"
    "log/slog"
    "net/http"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    auditsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/audit"
    forensicsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/forensic"
    merchantsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/merchant"
    treasurysvc "github.com/jkumari08/vigil-audit-protocol/internal/services/treasury"
    "github.com/jkumari08/vigil-audit-protocol/internal/workers/auditrunner"
    "github.com/jkumari08/vigil-audit-protocol/internal/x402"
)

type Server struct {
    treasury *treasurysvc.Service
    forensic *forensicsvc.Service
    merchant *merchantsvc.Service
    audits   *auditrunner.Registry
    runner   *auditsvc.Service

    gate     x402.GateConfig
    gateOpen bool // serve the forensic resource without a challenge

    feeAmount    float64
    feePriceFiat float64
    agentWallet  string

    log *slog.Logger
    now func() time.Time
}

type Options struct {
    Gate         x402.GateConfig
    GateOpen     bool
    FeeAmount    float64
    FeePriceFiat float64
    AgentWallet  string
}

func New(tr *treasurysvc.Service, fo *forensicsvc.Service, me *merchantsvc.Service,
    reg *auditrunner.Registry, runner *auditsvc.Service, opts Options, log *slog.Logger) *Server {
    return &Server{
        treasury:     tr,
        forensic:     fo,
        merchant:     me,
        audits:       reg,
        runner:       runner,
        gate:         opts.Gate,
        gateOpen:     opts.GateOpen,
        feeAmount:    opts.FeeAmount,
        feePriceFiat: opts.FeePriceFiat,
        agentWallet:  opts.AgentWallet,
        log:          log,
        now:          time.Now,
    }
}

func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Get("/healthz", s.handleHealthz)
    r.Post("/payment-confirmations", s.handlePaymentConfirmation)
    r.Post("/protected-resource", s.handleProtectedResource)
    r.Get("/ledger", s.handleLedgerGet)
    r.Post("/ledger", s.handleLedgerPost)
    r.Post("/ledger/reset", s.handleLedgerReset)
    r.Get("/merchant", s.handleMerchantGet)
    r.Post("/merchant", s.handleMerchantPost)
    r.Post("/audits", s.handleAuditPost)
    r.Get("/audits/{id}", s.handleAuditGet)
    return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type paymentConfirmation struct {
    ResourceID    string `json:"resourceId"`
    PaymentTxRef  string `json:"paymentTxRef"`
    PayerIdentity string `json:"payerIdentity"`
}

// handlePaymentConfirmation records an externally settled audit fee. The
// browser path uses this after the wallet reports success; the orchestrated
// path records income itself and never calls here.
func (s *Server) handlePaymentConfirmation(w http.ResponseWriter, r *http.Request) {
    var in paymentConfirmation
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    if !domain.ValidTxHash(in.ResourceID) {
        writeError(w, http.StatusBadRequest, "resourceId must be a 0x-prefixed 64-hex transaction hash")
        return
    }
    if in.PaymentTxRef == "" || !domain.ValidAddress(in.PayerIdentity) {
        writeError(w, http.StatusBadRequest, "paymentTxRef and a valid payerIdentity are required")
        return
    }
    if _, err := s.treasury.RecordIncome(r.Context(), s.feeAmount, s.feePriceFiat, in.PayerIdentity, in.PaymentTxRef); err != nil {
        writeDomainError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type gateRequest struct {
    ResourceID   string `json:"resourceId"`
    Phase        string `json:"phase"`
    PaymentTxRef string `json:"paymentTxRef"`
}

// handleProtectedResource is the x402 gate: the initial probe gets a 402
// challenge, the paid retry is verified, settled into the ledger, and served
// the forensic report.
func (s *Server) handleProtectedResource(w http.ResponseWriter, r *http.Request) {
    var in gateRequest
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    if !domain.ValidTxHash(in.ResourceID) {
        writeError(w, http.StatusBadRequest, "resourceId must be a 0x-prefixed 64-hex transaction hash")
        return
    }

    switch in.Phase {
    case "initial":
        if s.gateOpen {
            s.serveReport(w, r, in.ResourceID, "")
            return
        }
        writeJSON(w, http.StatusPaymentRequired, s.gate.Challenge(r.URL.Path))
    case "paid":
        payload, err := x402.VerifyHeader(r)
        if err != nil {
            switch {
            case errors.Is(err, x402.ErrMalformedPayment):
                writeError(w, http.StatusBadRequest, err.Error())
            default:
                // Missing or invalid authorization re-issues the demand.
                writeError(w, http.StatusPaymentRequired, err.Error())
            }
            return
        }
        settlement := s.settle(r, payload)
        s.serveReport(w, r, in.ResourceID, settlement)
    default:
        writeError(w, http.StatusBadRequest, "phase must be initial or paid")
    }
}

// settle books the accepted payment as an infrastructure expense and returns
// the simulated settlement transaction hash.
func (s *Server) settle(r *http.Request, payload x402.PaymentPayload) string {
    txHash := "0x" + randomHex(32)
    amount, err := strconv.ParseFloat(s.gate.Amount, 64)
    if err != nil {
        s.log.Warn("gate amount unparsable, settlement not booked", "amount", s.gate.Amount, "err", err)
        return txHash
    }
    if _, err := s.treasury.RecordExpense(r.Context(), amount, s.gate.PayTo, txHash); err != nil {
        s.log.Warn("gate settlement expense not booked", "err", err)
    }
    s.log.Info("x402 payment settled",
        "from", payload.Payload.Authorization.From, "amount", s.gate.Amount, "tx", txHash)
    return txHash
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, txHash, paymentTxRef string) {
    report, err := s.forensic.Analyze(r.Context(), txHash)
    if err != nil {
        writeDomainError(w, err)
        return
    }
    report.PaymentTxRef = paymentTxRef
    writeJSON(w, http.StatusOK, report)
}

type ledgerView struct {
    domain.TreasuryState
    NetProfitOrLoss float64 `json:"netProfitOrLoss"`
    MarginPercent   float64 `json:"marginPercent"`
    ADIPriceUSD     float64 `json:"adiPriceUSD"`
    AgentWallet     string  `json:"agentWallet"`
}

func (s *Server) handleLedgerGet(w http.ResponseWriter, r *http.Request) {
    state := s.treasury.Snapshot()
    writeJSON(w, http.StatusOK, ledgerView{
        TreasuryState:   state,
        NetProfitOrLoss: state.NetPL(),
        MarginPercent:   state.MarginPct(),
        ADIPriceUSD:     s.feePriceFiat,
        AgentWallet:     s.agentWallet,
    })
}

type ledgerIncome struct {
    Amount float64 `json:"amount"`
    Payer  string  `json:"payer"`
    TxRef  string  `json:"txRef"`
}

// handleLedgerPost books an income entry directly, for demos and operational
// corrections. Same field validation as the confirmation endpoint.
func (s *Server) handleLedgerPost(w http.ResponseWriter, r *http.Request) {
    var in ledgerIncome
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    if !domain.ValidAddress(in.Payer) {
        writeError(w, http.StatusBadRequest, "payer must be a 0x-prefixed 40-hex address")
        return
    }
    entry, err := s.treasury.RecordIncome(r.Context(), in.Amount, s.feePriceFiat, in.Payer, in.TxRef)
    if err != nil {
        writeDomainError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleLedgerReset(w http.ResponseWriter, r *http.Request) {
    if err := s.treasury.Reset(r.Context()); err != nil {
        writeDomainError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMerchantGet(w http.ResponseWriter, r *http.Request) {
    cfg, found, err := s.merchant.Get(r.Context())
    if err != nil {
        writeDomainError(w, err)
        return
    }
    if !found {
        writeError(w, http.StatusNotFound, "merchant not configured")
        return
    }
    writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleMerchantPost(w http.ResponseWriter, r *http.Request) {
    var in merchantsvc.Input
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    cfg, err := s.merchant.Save(r.Context(), in)
    if err != nil {
        writeDomainError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, cfg)
}

type auditRequest struct {
    TxHash string `json:"txHash"`
    Payer  string `json:"payer"`
}

// handleAuditPost enqueues an audit run. ?wait=true processes it inline on
// the request goroutine and returns the terminal record.
func (s *Server) handleAuditPost(w http.ResponseWriter, r *http.Request) {
    var in auditRequest
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    if !domain.ValidTxHash(in.TxHash) {
        writeError(w, http.StatusBadRequest, "txHash must be a 0x-prefixed 64-hex transaction hash")
        return
    }
    if !domain.ValidAddress(in.Payer) {
        writeError(w, http.StatusBadRequest, "payer must be a 0x-prefixed 40-hex address")
        return
    }

    if r.URL.Query().Get("wait") == "true" {
        // The request goroutine owns this run; it is registered but never
        // queued, so the background workers cannot pick it up as well.
        id := s.audits.Register(in.TxHash, in.Payer)
        _ = auditrunner.Process(r.Context(), s.audits, s.runner, id)
        run, _ := s.audits.Get(id)
        writeJSON(w, http.StatusOK, run)
        return
    }

    id, err := s.audits.Enqueue(in.TxHash, in.Payer)
    if err != nil {
        writeError(w, http.StatusServiceUnavailable, err.Error())
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]string{"auditId": id})
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
    run, ok := s.audits.Get(chi.URLParam(r, "id"))
    if !ok {
        writeError(w, http.StatusNotFound, "unknown audit run")
        return
    }
    writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
    code := http.StatusInternalServerError
    switch domain.KindOf(err) {
    case domain.KindInvalidInput:
        code = http.StatusBadRequest
    case domain.KindPaymentFailed, domain.KindPaymentRejected:
        code = http.StatusPaymentRequired
    case domain.KindProtocolViolation, domain.KindProtocolFailed:
        code = http.StatusBadGateway
    case domain.KindPersistenceFailure:
        code = http.StatusInternalServerError
    }
    writeError(w, code, err.Error())
}

func randomHex(n int) string {
    b := make([]byte, n)
    if _, err := rand.Read(b); err != nil {
        // crypto/rand failure is unrecoverable for settlement refs.
        panic(err)
    }
    return hex.EncodeToString(b)
}
