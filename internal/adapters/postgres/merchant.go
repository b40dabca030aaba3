package postgres

import (
    "context"
    "errors"

    "github.com/jackc/pgx/v5"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
)

// MerchantStore implementation: a single-row configuration record.

func (db *DB) Get(ctx context.Context) (domain.MerchantConfig, bool, error) {
    var cfg domain.MerchantConfig
    err := db.Pool.QueryRow(ctx, `
        SELECT business_name, receiving_address, settlement_token, pricing_currency, webhook_url, embed_code, created_at
        FROM merchant_config WHERE id = 1
    `).Scan(&cfg.BusinessName, &cfg.ReceivingAddress, &cfg.SettlementToken, &cfg.PricingCurrency, &cfg.WebhookURL, &cfg.EmbedCode, &cfg.CreatedAt)
    if errors.Is(err, pgx.ErrNoRows) {
        return domain.MerchantConfig{}, false, nil
    }
    if err != nil {
        return domain.MerchantConfig{}, false, err
    }
    return cfg, true, nil
}

func (db *DB) Put(ctx context.Context, cfg domain.MerchantConfig) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO merchant_config (id, business_name, receiving_address, settlement_token, pricing_currency, webhook_url, embed_code, created_at)
        VALUES (1, $1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            business_name = EXCLUDED.business_name,
            receiving_address = EXCLUDED.receiving_address,
            settlement_token = EXCLUDED.settlement_token,
            pricing_currency = EXCLUDED.pricing_currency,
            webhook_url = EXCLUDED.webhook_url,
            embed_code = EXCLUDED.embed_code,
            created_at = EXCLUDED.created_at
    `, cfg.BusinessName, cfg.ReceivingAddress, cfg.SettlementToken, cfg.PricingCurrency, cfg.WebhookURL, cfg.EmbedCode, cfg.CreatedAt)
    return err
}
