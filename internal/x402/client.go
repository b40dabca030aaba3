package x402

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "net/http"
    "time"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
)

// Client executes the two-round gated-access exchange for one resource at a
// time. It holds no per-call state; concurrent calls are independent.
type Client struct {
    httpc  *http.Client
    signer Signer
    payer  string
    log    *slog.Logger
    now    func() time.Time
}

// probeTimeout bounds only the unauthenticated first round. The paid retry
// is bounded by the challenge's stated max wait, which may be far longer,
// so the http.Client itself carries no timeout.
const probeTimeout = 30 * time.Second

func NewClient(payer string, signer Signer, log *slog.Logger) *Client {
    return &Client{
        httpc:  &http.Client{},
        signer: signer,
        payer:  payer,
        log:    log,
        now:    time.Now,
    }
}

// Result is the terminal outcome of one exchange. Gated is false when the
// resource was served directly with no challenge, which is a valid path,
// not an error.
type Result struct {
    Report    *domain.AuditReport
    Gated     bool
    Challenge *Challenge
}

type gateRequest struct {
    ResourceID   string `json:"resourceId"`
    Phase        string `json:"phase"`
    PaymentTxRef string `json:"paymentTxRef,omitempty"`
}

type gateError struct {
    Error string `json:"error"`
}

// Fetch probes gateURL for resourceID, satisfies a payment challenge if one
// is issued, and returns the protected report. Exactly one retry is made per
// 402; the retry round is bounded by the challenge's max wait duration.
func (c *Client) Fetch(ctx context.Context, gateURL, resourceID, paymentTxRef string, sink ports.EventSink) (*Result, error) {
    emit := func(t domain.EventType, msg, data string) {
        if sink != nil {
            sink(domain.LogEvent{Timestamp: c.now(), Type: t, Message: msg, Data: data})
        }
    }

    emit(domain.EventProtocol, "→ POST "+gateURL+" — requesting audit data", "")
    probeCtx, cancelProbe := context.WithTimeout(ctx, probeTimeout)
    defer cancelProbe()
    resp, err := c.post(probeCtx, gateURL, gateRequest{ResourceID: resourceID, Phase: "initial"}, nil)
    if err != nil {
        return nil, domain.Wrap(domain.KindProtocolFailed, "gate probe failed", err)
    }
    defer resp.Body.Close()

    switch resp.StatusCode {
    case http.StatusOK:
        // Ungated resource: served without a challenge.
        emit(domain.EventWarning, "Expected HTTP 402, got direct response — processing", "")
        var report domain.AuditReport
        if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
            return nil, domain.Wrap(domain.KindProtocolViolation, "malformed direct response", err)
        }
        emit(domain.EventSuccess, "Audit data served directly", "")
        return &Result{Report: &report}, nil
    case http.StatusPaymentRequired:
    default:
        return nil, domain.E(domain.KindProtocolFailed, fmt.Sprintf("gate returned unexpected status %d", resp.StatusCode))
    }

    emit(domain.EventProtocol, "← 402 Payment Required received from gate", "")
    var ch Challenge
    if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
        return nil, domain.Wrap(domain.KindProtocolViolation, "malformed payment challenge", err)
    }
    if err := ch.Validate(); err != nil {
        return nil, err
    }
    emit(domain.EventProtocol, fmt.Sprintf("Payment required: %s on %s", ch.MaxAmountRequired, ch.Network), "")
    emit(domain.EventInfo, "Pay-to address: "+ch.PayTo, "")

    emit(domain.EventPayment, "Constructing x402 EIP-3009 authorization...", "")
    payload, err := BuildPayload(ctx, ch, c.payer, c.signer, c.now())
    if err != nil {
        return nil, domain.Wrap(domain.KindProtocolFailed, "authorization signing failed", err)
    }
    header, err := json.Marshal(payload)
    if err != nil {
        return nil, domain.Wrap(domain.KindProtocolFailed, "authorization encoding failed", err)
    }
    emit(domain.EventPayment, "X-Payment header signed and encoded", "")

    // The retry round may not outlive the wait the challenge allows.
    retryCtx, cancel := context.WithTimeout(ctx, time.Duration(ch.MaxTimeoutSeconds)*time.Second)
    defer cancel()

    emit(domain.EventPayment, "→ POST "+gateURL+" with X-Payment header", "")
    paid, err := c.post(retryCtx, gateURL, gateRequest{ResourceID: resourceID, Phase: "paid", PaymentTxRef: paymentTxRef}, header)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) || retryCtx.Err() != nil {
            return nil, domain.Wrap(domain.KindProtocolFailed, "gated exchange timed out", err)
        }
        return nil, domain.Wrap(domain.KindProtocolFailed, "gate retry failed", err)
    }
    defer paid.Body.Close()

    if paid.StatusCode != http.StatusOK {
        var ge gateError
        _ = json.NewDecoder(paid.Body).Decode(&ge)
        detail := ge.Error
        if detail == "" {
            detail = fmt.Sprintf("status %d", paid.StatusCode)
        }
        return nil, domain.E(domain.KindPaymentRejected, "payment rejected by gate: "+detail)
    }

    emit(domain.EventSuccess, "← 200 OK — gate accepted payment", "")
    var report domain.AuditReport
    if err := json.NewDecoder(paid.Body).Decode(&report); err != nil {
        return nil, domain.Wrap(domain.KindProtocolViolation, "malformed protected result", err)
    }
    emit(domain.EventSuccess, fmt.Sprintf("Risk score: %d/100 — %s", report.RiskScore, report.RiskLevel), "")
    emit(domain.EventSuccess, fmt.Sprintf("Found %d findings", len(report.Findings)), "")
    return &Result{Report: &report, Gated: true, Challenge: &ch}, nil
}

func (c *Client) post(ctx context.Context, url string, body gateRequest, paymentHeader []byte) (*http.Response, error) {
    buf, err := json.Marshal(body)
    if err != nil {
        return nil, err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
    if err != nil {
        return nil, err
    }
    req.Header.Set("Content-Type", "application/json")
    if paymentHeader != nil {
        req.Header.Set(HeaderPayment, string(paymentHeader))
        req.Header.Set(HeaderPaymentVersion, Version)
    }
    return c.httpc.Do(req)
}
