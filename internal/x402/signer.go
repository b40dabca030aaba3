package x402

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "strconv"
    "time"
)

// Signer produces the signature over an assembled authorization. The client
// only assembles the unsigned fields; signing is delegated here so a real
// EIP-3009 wallet signer can be dropped in.
type Signer interface {
    Sign(ctx context.Context, auth Authorization) (signature string, err error)
}

// StubSigner fabricates a well-formed 65-byte hex signature. It carries no
// cryptographic meaning; production deployments must replace it.
type StubSigner struct{}

func (StubSigner) Sign(ctx context.Context, auth Authorization) (string, error) {
    return randomHex(65)
}

// clockSkew is subtracted from validAfter so honest clock drift between
// client and gate does not invalidate a fresh authorization.
const clockSkew = 60 * time.Second

// BuildPayload assembles and signs a payment payload for ch. The validity
// window spans [now-skew, now+maxTimeoutSeconds] and the nonce is unique per
// authorization.
func BuildPayload(ctx context.Context, ch Challenge, from string, signer Signer, now time.Time) (PaymentPayload, error) {
    nonce, err := randomHex(32)
    if err != nil {
        return PaymentPayload{}, err
    }
    auth := Authorization{
        From:        from,
        To:          ch.PayTo,
        Value:       ch.MaxAmountRequired,
        ValidAfter:  strconv.FormatInt(now.Add(-clockSkew).Unix(), 10),
        ValidBefore: strconv.FormatInt(now.Add(time.Duration(ch.MaxTimeoutSeconds)*time.Second).Unix(), 10),
        Nonce:       nonce,
    }
    sig, err := signer.Sign(ctx, auth)
    if err != nil {
        return PaymentPayload{}, err
    }
    return PaymentPayload{
        X402Version: 1,
        Scheme:      SchemeExact,
        Network:     ch.Network,
        Payload:     SignedPayload{Signature: sig, Authorization: auth},
    }, nil
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return "0x" + hex.EncodeToString(buf), nil
}
