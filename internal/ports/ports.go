package ports

import (
    "context"
    "errors"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

// Typed payment outcomes. The wallet adapter is the only place allowed to
// interpret provider-specific failure text; everything above it branches on
// these sentinels.
var (
    ErrUserCancelled       = errors.New("payment cancelled by user")
    ErrProviderUnavailable = errors.New("payment provider unavailable")
    ErrTransport           = errors.New("payment transport error")
)

type PaymentRequest struct {
    Payer   string
    To      string
    Amount  float64
    Token   string
    Network string
    Memo    string
}

// PaymentGateway abstracts "pay amount X to address Y on network Z".
type PaymentGateway interface {
    Pay(ctx context.Context, req PaymentRequest) (domain.PaymentReceipt, error)
}

// Analyzer produces a structured risk assessment for a transaction hash.
// Implementations decide how the assessment is computed; the default is a
// deterministic mock seeded from the hash.
type Analyzer interface {
    Analyze(ctx context.Context, txHash string) (domain.AuditReport, error)
}

// EventSink receives audit run log events strictly in completion order.
type EventSink func(domain.LogEvent)
