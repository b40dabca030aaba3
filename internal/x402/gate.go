package x402

import (
    "encoding/json"
    "errors"
    "net/http"
)

// Gate errors, mapped to HTTP statuses by the handler: missing and invalid
// authorizations re-issue 402, a header that cannot be parsed is a 400.
var (
    ErrMissingPayment   = errors.New("X-Payment header required")
    ErrMalformedPayment = errors.New("invalid X-Payment header")
    ErrInvalidAuth      = errors.New("invalid payment authorization")
)

// GateConfig describes the payment a protected endpoint demands.
type GateConfig struct {
    Network           string
    Amount            string
    PayTo             string
    Asset             string
    MaxTimeoutSeconds int
    ServiceName       string
    ServiceVersion    string
    Description       string
}

// Challenge builds the 402 response body for resource.
func (g GateConfig) Challenge(resource string) Challenge {
    ch := Challenge{
        Version:           Version,
        Scheme:            SchemeExact,
        Network:           g.Network,
        MaxAmountRequired: g.Amount,
        Resource:          resource,
        Description:       g.Description,
        MimeType:          "application/json",
        PayTo:             g.PayTo,
        MaxTimeoutSeconds: g.MaxTimeoutSeconds,
        Asset:             g.Asset,
    }
    if g.ServiceName != "" {
        ch.Extra = &ChallengeExtra{Name: g.ServiceName, Version: g.ServiceVersion}
    }
    return ch
}

// VerifyHeader extracts and structurally validates the payment payload from
// the retry request. Signature verification is out of scope here; a real
// deployment verifies the EIP-3009 authorization before settling.
func VerifyHeader(r *http.Request) (PaymentPayload, error) {
    raw := r.Header.Get(HeaderPayment)
    if raw == "" {
        return PaymentPayload{}, ErrMissingPayment
    }
    var payload PaymentPayload
    if err := json.Unmarshal([]byte(raw), &payload); err != nil {
        return PaymentPayload{}, ErrMalformedPayment
    }
    if payload.Payload.Authorization.From == "" {
        return PaymentPayload{}, ErrInvalidAuth
    }
    return payload, nil
}
