// Package audit coordinates one end-to-end run: validate the transaction
// hash, collect the end-user fee, record the income, drive the gated
// forensic exchange, and hand back the report plus an ordered event log.
package audit

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strconv"
    "time"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
    "github.com/jkumari08/vigil-audit-protocol/internal/services/treasury"
    "github.com/jkumari08/vigil-audit-protocol/internal/x402"
)

// State is the lifecycle of a single run. Failed is reachable from every
// non-terminal state.
type State string

const (
    StateSubmitted        State = "submitted"
    StatePaymentPending   State = "payment_pending"
    StatePaymentConfirmed State = "payment_confirmed"
    StateChallengePending State = "challenge_pending"
    StateFulfilled        State = "fulfilled"
    StateFailed           State = "failed"
)

type Config struct {
    // FeeAmount and FeePriceFiat value the end-user audit fee.
    FeeAmount    float64
    FeePriceFiat float64
    FeeToken     string
    FeeNetwork   string
    // PayTo receives the audit fee.
    PayTo string
    // GateURL is the protected forensic endpoint.
    GateURL string
    // RecordExpense books the settled gate fee into our ledger. Leave false
    // when the gate is in-process and already records its own settlement into
    // the same ledger, or the expense would be counted twice.
    RecordExpense bool
}

func DefaultConfig(gateURL, payTo string) Config {
    return Config{
        FeeAmount:    1.0,
        FeePriceFiat: 0.42,
        FeeToken:     "ADI",
        FeeNetwork:   "ADI Testnet",
        PayTo:        payTo,
        GateURL:      gateURL,
    }
}

// Hooks observe a run. Both callbacks are optional; events arrive strictly
// in the order operations complete.
type Hooks struct {
    Event ports.EventSink
    State func(State)
}

type Service struct {
    cfg      Config
    gateway  ports.PaymentGateway
    client   *x402.Client
    treasury *treasury.Service
    log      *slog.Logger
    now      func() time.Time
}

func New(cfg Config, gateway ports.PaymentGateway, client *x402.Client, tr *treasury.Service, log *slog.Logger) *Service {
    return &Service{cfg: cfg, gateway: gateway, client: client, treasury: tr, log: log, now: time.Now}
}

// Run executes the full orchestration for txHash on behalf of payer. The
// returned error always carries a domain.Kind; the event log emitted through
// hooks is complete even on the failed path.
func (s *Service) Run(ctx context.Context, txHash, payer string, hooks Hooks) (*domain.AuditReport, error) {
    emit := func(t domain.EventType, msg, data string) {
        if hooks.Event != nil {
            hooks.Event(domain.LogEvent{Timestamp: s.now(), Type: t, Message: msg, Data: data})
        }
    }
    transition := func(st State) {
        if hooks.State != nil {
            hooks.State(st)
        }
    }

    transition(StateSubmitted)
    if !domain.ValidTxHash(txHash) {
        err := domain.E(domain.KindInvalidInput, "invalid transaction hash format, want 0x + 64 hex chars")
        emit(domain.EventError, err.Message, txHash)
        transition(StateFailed)
        return nil, err
    }

    emit(domain.EventInfo, "Audit orchestration started", "tx: "+txHash)

    transition(StatePaymentPending)
    emit(domain.EventPayment, fmt.Sprintf("Requesting audit fee: %g %s to %s", s.cfg.FeeAmount, s.cfg.FeeToken, s.cfg.PayTo), "")
    receipt, err := s.gateway.Pay(ctx, ports.PaymentRequest{
        Payer:   payer,
        To:      s.cfg.PayTo,
        Amount:  s.cfg.FeeAmount,
        Token:   s.cfg.FeeToken,
        Network: s.cfg.FeeNetwork,
        Memo:    "Audit fee",
    })
    if err != nil {
        ferr := classifyPayment(err)
        emit(domain.EventError, ferr.Message, "")
        transition(StateFailed)
        return nil, ferr
    }

    transition(StatePaymentConfirmed)
    emit(domain.EventInfo, "Audit fee payment confirmed: "+receipt.TxRef, "")
    if _, err := s.treasury.RecordIncome(ctx, receipt.Amount, s.cfg.FeePriceFiat, receipt.Payer, receipt.TxRef); err != nil {
        // The payment went through; an accounting rejection here means the
        // gateway returned a nonsense amount.
        ferr := domain.Wrap(domain.KindPaymentFailed, "income recording rejected", err)
        emit(domain.EventError, ferr.Message, "")
        transition(StateFailed)
        return nil, ferr
    }

    transition(StateChallengePending)
    result, err := s.client.Fetch(ctx, s.cfg.GateURL, txHash, receipt.TxRef, hooks.Event)
    if err != nil {
        emit(domain.EventError, err.Error(), "")
        transition(StateFailed)
        return nil, err
    }

    if s.cfg.RecordExpense && result.Gated {
        amount, perr := strconv.ParseFloat(result.Challenge.MaxAmountRequired, 64)
        if perr != nil {
            ferr := domain.Wrap(domain.KindProtocolViolation, "challenge amount unparsable", perr)
            emit(domain.EventError, ferr.Message, "")
            transition(StateFailed)
            return nil, ferr
        }
        if _, err := s.treasury.RecordExpense(ctx, amount, result.Challenge.PayTo, result.Report.PaymentTxRef); err != nil {
            ferr := domain.Wrap(domain.KindProtocolFailed, "expense recording rejected", err)
            emit(domain.EventError, ferr.Message, "")
            transition(StateFailed)
            return nil, ferr
        }
    }

    emit(domain.EventInfo, "Compute node: "+result.Report.ComputeNode, "")
    emit(domain.EventSuccess, "Audit complete, report ready", "")
    transition(StateFulfilled)
    s.log.Info("audit run fulfilled", "tx", txHash, "score", result.Report.RiskScore, "gated", result.Gated)
    return result.Report, nil
}

// classifyPayment maps gateway sentinels onto the failure taxonomy. User
// cancellation and infrastructure failure are both terminal; the distinction
// only drives caller messaging.
func classifyPayment(err error) *domain.Error {
    switch {
    case errors.Is(err, ports.ErrUserCancelled):
        return domain.Wrap(domain.KindPaymentFailed, "audit fee payment cancelled by user", err)
    case errors.Is(err, ports.ErrProviderUnavailable):
        return domain.Wrap(domain.KindPaymentFailed, "payment provider unavailable", err)
    case errors.Is(err, ports.ErrTransport):
        return domain.Wrap(domain.KindPaymentFailed, "payment transport failure", err)
    default:
        return domain.Wrap(domain.KindPaymentFailed, "audit fee payment failed", err)
    }
}
