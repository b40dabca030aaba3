package merchant

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/memstore"
    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

const testAddress = "0x1b7e3f9a5c2d8e4f6a0b9c1d3e5f7a2b4c6d8e0f"

func TestSaveAppliesDefaults(t *testing.T) {
    svc := New(memstore.NewMerchantStore())

    cfg, err := svc.Save(context.Background(), Input{
        BusinessName:     "Acme Forensics",
        ReceivingAddress: testAddress,
    })
    require.NoError(t, err)
    assert.Equal(t, "ADI", cfg.SettlementToken)
    assert.Equal(t, "USD", cfg.PricingCurrency)
    assert.False(t, cfg.CreatedAt.IsZero())
    assert.Contains(t, cfg.EmbedCode, testAddress)
    assert.Contains(t, cfg.EmbedCode, "vigil-payment")

    got, found, err := svc.Get(context.Background())
    require.NoError(t, err)
    require.True(t, found)
    assert.Equal(t, cfg, got)
}

func TestSaveKeepsExplicitValues(t *testing.T) {
    svc := New(memstore.NewMerchantStore())

    cfg, err := svc.Save(context.Background(), Input{
        BusinessName:     "Acme Forensics",
        ReceivingAddress: testAddress,
        SettlementToken:  "USDC",
        PricingCurrency:  "EUR",
        WebhookURL:       "https://hooks.example.com/payments",
    })
    require.NoError(t, err)
    assert.Equal(t, "USDC", cfg.SettlementToken)
    assert.Equal(t, "EUR", cfg.PricingCurrency)
    assert.Equal(t, "https://hooks.example.com/payments", cfg.WebhookURL)
}

func TestSaveValidation(t *testing.T) {
    svc := New(memstore.NewMerchantStore())

    cases := map[string]Input{
        "missing name":    {ReceivingAddress: testAddress},
        "missing address": {BusinessName: "Acme"},
        "bad address":     {BusinessName: "Acme", ReceivingAddress: "0x123"},
        "relative webhook": {
            BusinessName: "Acme", ReceivingAddress: testAddress, WebhookURL: "/hooks",
        },
        "ftp webhook": {
            BusinessName: "Acme", ReceivingAddress: testAddress, WebhookURL: "ftp://example.com/x",
        },
        "bare tld webhook": {
            BusinessName: "Acme", ReceivingAddress: testAddress, WebhookURL: "https://com/x",
        },
    }
    for name, in := range cases {
        t.Run(name, func(t *testing.T) {
            _, err := svc.Save(context.Background(), in)
            assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
        })
    }

    _, found, err := svc.Get(context.Background())
    require.NoError(t, err)
    assert.False(t, found, "nothing persisted after rejected saves")
}

func TestSaveOverwrites(t *testing.T) {
    svc := New(memstore.NewMerchantStore())
    ctx := context.Background()

    _, err := svc.Save(ctx, Input{BusinessName: "First", ReceivingAddress: testAddress})
    require.NoError(t, err)
    _, err = svc.Save(ctx, Input{BusinessName: "Second", ReceivingAddress: testAddress})
    require.NoError(t, err)

    got, found, err := svc.Get(ctx)
    require.NoError(t, err)
    require.True(t, found)
    assert.Equal(t, "Second", got.BusinessName)
}
