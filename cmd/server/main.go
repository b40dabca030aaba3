package main

import (
    "context"
    "fmt"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/go-chi/chi/v5"

    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/filestore"
    httpadapter "github.com/jkumari08/vigil-audit-protocol/internal/adapters/http"
    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/memstore"
    pg "github.com/jkumari08/vigil-audit-protocol/internal/adapters/postgres"
    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/sqlite"
    "github.com/jkumari08/vigil-audit-protocol/internal/adapters/wallet"
    "github.com/jkumari08/vigil-audit-protocol/internal/config"
    "github.com/jkumari08/vigil-audit-protocol/internal/ports"
    auditsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/audit"
    forensicsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/forensic"
    merchantsvc "github.com/jkumari08/vigil-audit-protocol/internal/services/merchant"
    treasurysvc "github.com/jkumari08/vigil-audit-protocol/internal/services/treasury"
    "github.com/jkumari08/vigil-audit-protocol/internal/workers/auditrunner"
    "github.com/jkumari08/vigil-audit-protocol/internal/x402"
)

func main() {
    if err := run(); err != nil {
        fmt.Fprintln(os.Stderr, "fatal:", err)
        os.Exit(1)
    }
}

func run() error {
    cfg, err := config.Load()
    if err != nil {
        return err
    }

    log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
    if cfg.Env == "development" {
        log = slog.New(slog.NewTextHandler(os.Stdout, nil))
    }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    ledger, merchants, closeStores, err := openStores(ctx, cfg)
    if err != nil {
        return err
    }
    defer closeStores()

    treasury, err := treasurysvc.New(ctx, treasurysvc.DefaultConfig(), ledger, log)
    if err != nil {
        return err
    }
    forensic := forensicsvc.New(forensicsvc.DefaultNodeID)
    merchant := merchantsvc.New(merchants)

    gate := x402.GateConfig{
        Network:           "base-mainnet",
        Amount:            cfg.GateAmount,
        PayTo:             "0x0g-compute-node-vigil-audit-protocol",
        Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
        MaxTimeoutSeconds: 300,
        ServiceName:       "Vigil Forensic API",
        ServiceVersion:    "1.0.0",
        Description:       "AI forensic analysis of on-chain transaction, powered by 0G Compute Network",
    }

    gateURL := cfg.GateURL
    inProcessGate := gateURL == ""
    if inProcessGate {
        gateURL = "http://127.0.0.1" + cfg.ListenAddr + "/protected-resource"
    }

    gateway := wallet.NewSimulated(log)
    client := x402.NewClient(cfg.AgentWallet, x402.StubSigner{}, log)
    auditCfg := auditsvc.DefaultConfig(gateURL, cfg.MerchantAddress)
    auditCfg.FeeAmount = cfg.FeeAmount
    auditCfg.FeePriceFiat = cfg.FeePriceFiat
    // A remote gate settles into its own books; record our side of the spend.
    auditCfg.RecordExpense = !inProcessGate
    runner := auditsvc.New(auditCfg, gateway, client, treasury, log)

    registry := auditrunner.NewRegistry(cfg.AuditQueue)
    auditrunner.Start(ctx, registry, runner, cfg.AuditWorkers, log)
    log.Info("audit workers started", "count", cfg.AuditWorkers)

    srv := httpadapter.New(treasury, forensic, merchant, registry, runner, httpadapter.Options{
        Gate:         gate,
        FeeAmount:    cfg.FeeAmount,
        FeePriceFiat: cfg.FeePriceFiat,
        AgentWallet:  cfg.AgentWallet,
    }, log)
    r := chi.NewRouter()
    r.Mount("/", srv.Routes())

    errCh := make(chan error, 1)
    go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
    log.Info("listening", "addr", cfg.ListenAddr, "backend", cfg.LedgerBackend)

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-sigCh:
        log.Info("shutting down", "signal", sig.String())
        cancel()
        time.Sleep(300 * time.Millisecond)
        return nil
    case err := <-errCh:
        return fmt.Errorf("server error: %w", err)
    }
}

// openStores builds the ledger and merchant stores for the configured
// backend. The returned closer is a no-op for stores without resources.
func openStores(ctx context.Context, cfg config.Config) (ports.LedgerStore, ports.MerchantStore, func(), error) {
    noop := func() {}
    switch cfg.LedgerBackend {
    case "memory":
        return memstore.NewLedgerStore(), memstore.NewMerchantStore(), noop, nil
    case "file":
        return filestore.NewLedgerStore(cfg.LedgerFile),
            filestore.NewMerchantStore(cfg.LedgerFile + ".merchant"), noop, nil
    case "sqlite":
        st, err := sqlite.Open(cfg.SQLitePath)
        if err != nil {
            return nil, nil, noop, err
        }
        // Merchant config stays in-process on this backend.
        return st, memstore.NewMerchantStore(), func() { _ = st.Close() }, nil
    case "postgres":
        if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
            return nil, nil, noop, err
        }
        db, err := pg.Connect(ctx, cfg.DatabaseURL)
        if err != nil {
            return nil, nil, noop, err
        }
        return db, db, func() { db.Close() }, nil
    default:
        return nil, nil, noop, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
    }
}
