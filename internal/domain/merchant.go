package domain

import "time"

// MerchantConfig is the seller-side configuration record. Plain key/value
// persistence; not gated by the payment protocol.
type MerchantConfig struct {
    BusinessName     string    `json:"businessName"`
    ReceivingAddress string    `json:"receivingAddress"`
    SettlementToken  string    `json:"settlementToken"`
    PricingCurrency  string    `json:"pricingCurrency"`
    WebhookURL       string    `json:"webhookUrl,omitempty"`
    CreatedAt        time.Time `json:"createdAt"`
    EmbedCode        string    `json:"embedCode,omitempty"`
}
