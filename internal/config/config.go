package config

import (
    "fmt"
    "os"
)

type Config struct {
    Env        string
    ListenAddr string

    // LedgerBackend selects the persistence strategy: memory, file, sqlite
    // or postgres.
    LedgerBackend string
    LedgerFile    string
    SQLitePath    string
    DatabaseURL   string

    // AgentWallet signs x402 authorizations and appears as the payer of
    // gate settlements. MerchantAddress receives the end-user audit fee.
    AgentWallet     string
    MerchantAddress string

    // GateURL overrides the forensic gate endpoint; empty means the
    // in-process gate served by this binary.
    GateURL string

    AuditWorkers int
    AuditQueue   int

    FeeAmount    float64
    FeePriceFiat float64
    GateAmount   string
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func Load() (Config, error) {
    cfg := Config{
        Env:             getenv("APP_ENV", "development"),
        ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
        LedgerBackend:   getenv("LEDGER_BACKEND", "memory"),
        LedgerFile:      getenv("LEDGER_FILE", "treasury.json"),
        SQLitePath:      getenv("SQLITE_PATH", "vigil.db"),
        DatabaseURL:     os.Getenv("DATABASE_URL"),
        AgentWallet:     getenv("AGENT_WALLET", "0x9f8a2b4c6d1e3f5a7b9c0d2e4f6a8b1c3d5e7f90"),
        MerchantAddress: getenv("MERCHANT_ADDRESS", "0x1b7e3f9a5c2d8e4f6a0b9c1d3e5f7a2b4c6d8e0f"),
        GateURL:         os.Getenv("GATE_URL"),
        AuditWorkers:    getenvInt("AUDIT_WORKERS", 2),
        AuditQueue:      getenvInt("AUDIT_QUEUE", 64),
        FeeAmount:       getenvFloat("FEE_AMOUNT", 1.0),
        FeePriceFiat:    getenvFloat("FEE_PRICE_USD", 0.42),
        GateAmount:      getenv("GATE_AMOUNT", "0.01"),
    }
    switch cfg.LedgerBackend {
    case "memory", "file", "sqlite":
    case "postgres":
        if cfg.DatabaseURL == "" {
            return cfg, fmt.Errorf("LEDGER_BACKEND=postgres requires DATABASE_URL")
        }
    default:
        return cfg, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
    }
    return cfg, nil
}

func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var out int
        if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
            return out
        }
    }
    return def
}

func getenvFloat(key string, def float64) float64 {
    if v := os.Getenv(key); v != "" {
        var out float64
        if _, err := fmt.Sscanf(v, "%g", &out); err == nil {
            return out
        }
    }
    return def
}
