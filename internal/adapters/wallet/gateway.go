// Package wallet adapts a wallet/chain provider to the PaymentGateway port.
// This is the only boundary allowed to look at provider failure text; it
// translates the free-form messages real wallet stacks emit into the typed
// outcomes everything above it branches on.
package wallet

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "log/slog"
    "strings"
    "time"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
)

// Provider submits a payment and returns the chain transaction reference.
// Real implementations wrap a node RPC plus wallet signing; failures may be
// raw provider errors.
type Provider func(ctx context.Context, req ports.PaymentRequest) (txRef string, err error)

type Gateway struct {
    provider Provider
    log      *slog.Logger
    now      func() time.Time
}

func New(provider Provider, log *slog.Logger) *Gateway {
    return &Gateway{provider: provider, log: log, now: time.Now}
}

// NewSimulated returns a gateway whose provider fabricates a transaction
// reference after a short settling delay. Used for demos and tests; no chain
// is involved.
func NewSimulated(log *slog.Logger) *Gateway {
    return New(func(ctx context.Context, req ports.PaymentRequest) (string, error) {
        select {
        case <-ctx.Done():
            return "", ctx.Err()
        case <-time.After(50 * time.Millisecond):
        }
        buf := make([]byte, 32)
        if _, err := rand.Read(buf); err != nil {
            return "", err
        }
        return "0x" + hex.EncodeToString(buf), nil
    }, log)
}

func (g *Gateway) Pay(ctx context.Context, req ports.PaymentRequest) (domain.PaymentReceipt, error) {
    txRef, err := g.provider(ctx, req)
    if err != nil {
        cerr := classify(err)
        g.log.Warn("payment failed", "to", req.To, "amount", req.Amount, "err", cerr)
        return domain.PaymentReceipt{}, cerr
    }
    receipt := domain.PaymentReceipt{
        Payer:   req.Payer,
        Amount:  req.Amount,
        Token:   req.Token,
        Network: req.Network,
        TxRef:   txRef,
        Time:    g.now(),
    }
    g.log.Info("payment sent", "to", req.To, "amount", req.Amount, "token", req.Token, "txRef", txRef)
    return receipt, nil
}

// classify folds the provider's failure modes into the three typed outcomes.
// The substring checks cover the phrases MetaMask-compatible providers emit.
func classify(err error) error {
    if err == nil {
        return nil
    }
    msg := strings.ToLower(err.Error())
    switch {
    case strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied") || strings.Contains(msg, "context canceled"):
        return wrapSentinel(ports.ErrUserCancelled, err)
    case strings.Contains(msg, "unavailable") || strings.Contains(msg, "not installed") || strings.Contains(msg, "no accounts"):
        return wrapSentinel(ports.ErrProviderUnavailable, err)
    default:
        return wrapSentinel(ports.ErrTransport, err)
    }
}

type sentinelError struct {
    sentinel error
    cause    error
}

func (e *sentinelError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }

func (e *sentinelError) Is(target error) bool { return target == e.sentinel }

func (e *sentinelError) Unwrap() error { return e.cause }

func wrapSentinel(sentinel, cause error) error {
    return &sentinelError{sentinel: sentinel, cause: cause}
}
