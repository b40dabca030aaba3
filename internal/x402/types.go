// Package x402 implements the two-round HTTP 402 challenge/response protocol
// used to gate the forensic service: probe, receive a payment challenge,
// attach a signed payment authorization, retry once.
package x402

import (
    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

const (
    // Version is the protocol version carried in challenges and headers.
    Version = "2"

    // SchemeExact transfers the exact challenged amount (EIP-3009 style).
    SchemeExact = "exact"

    // HeaderPayment carries the JSON-encoded PaymentPayload on the retry.
    HeaderPayment        = "X-Payment"
    HeaderPaymentVersion = "X-Payment-Version"
)

// Challenge is the server-issued description of the payment required to
// unlock a gated resource. Consumed exactly once to build an authorization;
// never persisted.
type Challenge struct {
    Version           string          `json:"version"`
    Scheme            string          `json:"scheme"`
    Network           string          `json:"network"`
    MaxAmountRequired string          `json:"maxAmountRequired"`
    Resource          string          `json:"resource"`
    Description       string          `json:"description,omitempty"`
    MimeType          string          `json:"mimeType,omitempty"`
    PayTo             string          `json:"payTo"`
    MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
    Asset             string          `json:"asset"`
    Extra             *ChallengeExtra `json:"extra,omitempty"`
}

type ChallengeExtra struct {
    Name    string `json:"name"`
    Version string `json:"version"`
}

// Validate checks the fields a client needs to construct an authorization.
func (c *Challenge) Validate() error {
    switch {
    case c.Scheme != SchemeExact:
        return domain.E(domain.KindProtocolViolation, "challenge: unsupported scheme "+c.Scheme)
    case c.Network == "":
        return domain.E(domain.KindProtocolViolation, "challenge: missing network")
    case c.MaxAmountRequired == "":
        return domain.E(domain.KindProtocolViolation, "challenge: missing maxAmountRequired")
    case c.PayTo == "":
        return domain.E(domain.KindProtocolViolation, "challenge: missing payTo")
    case c.MaxTimeoutSeconds <= 0:
        return domain.E(domain.KindProtocolViolation, "challenge: missing maxTimeoutSeconds")
    case c.Asset == "":
        return domain.E(domain.KindProtocolViolation, "challenge: missing asset")
    }
    return nil
}

// Authorization is the unsigned transfer authorization assembled from a
// challenge. The validity window and nonce exist to prevent replay.
type Authorization struct {
    From        string `json:"from"`
    To          string `json:"to"`
    Value       string `json:"value"`
    ValidAfter  string `json:"validAfter"`
    ValidBefore string `json:"validBefore"`
    Nonce       string `json:"nonce"`
}

// SignedPayload pairs an authorization with its signature.
type SignedPayload struct {
    Signature     string        `json:"signature"`
    Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the full X-Payment header body.
type PaymentPayload struct {
    X402Version int           `json:"x402Version"`
    Scheme      string        `json:"scheme"`
    Network     string        `json:"network"`
    Payload     SignedPayload `json:"payload"`
}
