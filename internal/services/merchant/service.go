package merchant

import (
    "context"
    "fmt"
    "net/url"
    "time"

    "golang.org/x/net/publicsuffix"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
)

// Input is the caller-supplied configuration; optional fields default.
type Input struct {
    BusinessName     string `json:"businessName"`
    ReceivingAddress string `json:"receivingAddress"`
    SettlementToken  string `json:"settlementToken"`
    PricingCurrency  string `json:"pricingCurrency"`
    WebhookURL       string `json:"webhookUrl"`
}

type Service struct {
    store ports.MerchantStore
    now   func() time.Time
}

func New(store ports.MerchantStore) *Service {
    return &Service{store: store, now: time.Now}
}

func (s *Service) Get(ctx context.Context) (domain.MerchantConfig, bool, error) {
    return s.store.Get(ctx)
}

// Save validates and persists the merchant configuration, generating the
// embeddable payment widget snippet.
func (s *Service) Save(ctx context.Context, in Input) (domain.MerchantConfig, error) {
    if in.BusinessName == "" || in.ReceivingAddress == "" {
        return domain.MerchantConfig{}, domain.E(domain.KindInvalidInput, "businessName and receivingAddress required")
    }
    if !domain.ValidAddress(in.ReceivingAddress) {
        return domain.MerchantConfig{}, domain.E(domain.KindInvalidInput, "invalid receiving address")
    }
    if in.WebhookURL != "" {
        if err := validateWebhook(in.WebhookURL); err != nil {
            return domain.MerchantConfig{}, err
        }
    }

    token := in.SettlementToken
    if token == "" {
        token = "ADI"
    }
    currency := in.PricingCurrency
    if currency == "" {
        currency = "USD"
    }

    cfg := domain.MerchantConfig{
        BusinessName:     in.BusinessName,
        ReceivingAddress: in.ReceivingAddress,
        SettlementToken:  token,
        PricingCurrency:  currency,
        WebhookURL:       in.WebhookURL,
        CreatedAt:        s.now(),
        EmbedCode:        embedCode(in.ReceivingAddress, token, currency),
    }
    if err := s.store.Put(ctx, cfg); err != nil {
        return domain.MerchantConfig{}, domain.Wrap(domain.KindPersistenceFailure, "merchant config write failed", err)
    }
    return cfg, nil
}

// validateWebhook requires an absolute http(s) URL whose host resolves to a
// registrable domain, so callbacks never target bare TLDs or garbage hosts.
func validateWebhook(raw string) error {
    u, err := url.Parse(raw)
    if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
        return domain.E(domain.KindInvalidInput, "webhookUrl must be an absolute http(s) URL")
    }
    if _, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname()); err != nil {
        return domain.E(domain.KindInvalidInput, "webhookUrl host has no registrable domain")
    }
    return nil
}

func embedCode(address, token, currency string) string {
    return fmt.Sprintf(`<!-- Vigil ADI Payment Widget -->
<script src="https://vigil.app/widget.js"></script>
<div
  id="vigil-payment"
  data-address="%s"
  data-token="%s"
  data-currency="%s"
  data-amount="1"
></div>
<script>Vigil.mount('#vigil-payment');</script>`, address, token, currency)
}
