package domain

import (
    "fmt"
    "regexp"
    "time"
)

// Core domain models shared by the services and adapters. HTTP request and
// response shapes live with the handlers; keep these decoupled where helpful.

var (
    txHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
    addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ValidTxHash reports whether s is a 0x-prefixed 64-hex-char transaction hash.
func ValidTxHash(s string) bool { return txHashRe.MatchString(s) }

// ValidAddress reports whether s is a 0x-prefixed 40-hex-char account address.
func ValidAddress(s string) bool { return addressRe.MatchString(s) }

// PaymentReceipt records one successful end-user fee payment. Immutable once
// created; referenced by at most one ledger entry and one audit run.
type PaymentReceipt struct {
    Payer   string    `json:"payer"`
    Amount  float64   `json:"amount"`
    Token   string    `json:"token"`
    Network string    `json:"network"`
    TxRef   string    `json:"txRef"`
    Time    time.Time `json:"time"`
}

type Severity string

const (
    SeverityInfo     Severity = "INFO"
    SeverityLow      Severity = "LOW"
    SeverityMedium   Severity = "MEDIUM"
    SeverityHigh     Severity = "HIGH"
    SeverityCritical Severity = "CRITICAL"
)

type RiskLevel string

const (
    RiskLow      RiskLevel = "LOW"
    RiskMedium   RiskLevel = "MEDIUM"
    RiskHigh     RiskLevel = "HIGH"
    RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor maps a 0-99 risk score onto its classification tier.
func RiskLevelFor(score int) RiskLevel {
    switch {
    case score < 25:
        return RiskLow
    case score < 50:
        return RiskMedium
    case score < 75:
        return RiskHigh
    default:
        return RiskCritical
    }
}

type Finding struct {
    Severity    Severity `json:"severity"`
    Title       string   `json:"title"`
    Description string   `json:"description"`
    Category    string   `json:"category"`
}

// AuditReport is the payload released by the gated forensic service.
type AuditReport struct {
    TxHash       string    `json:"txHash"`
    RiskScore    int       `json:"riskScore"`
    RiskLevel    RiskLevel `json:"riskLevel"`
    Findings     []Finding `json:"findings"`
    ContractType string    `json:"contractType"`
    IsVerified   bool      `json:"isVerified"`
    FromAddress  string    `json:"fromAddress"`
    ToAddress    *string   `json:"toAddress"`
    Value        string    `json:"value"`
    GasUsed      string    `json:"gasUsed"`
    BlockNumber  int64     `json:"blockNumber"`
    Timestamp    time.Time `json:"timestamp"`
    Summary      string    `json:"summary"`

    // Provenance of the computation.
    ComputeNode          string `json:"computeNode"`
    InferenceID          string `json:"inferenceId"`
    PaymentTxRef         string `json:"paymentTxHash,omitempty"`
    ComputationProof     string `json:"computationProof,omitempty"`
    NodeSignature        string `json:"nodeSignature,omitempty"`
    VerificationHash     string `json:"verificationHash,omitempty"`
    ComputationTimestamp string `json:"computationTimestamp,omitempty"`
}

type EntryDirection string

const (
    DirectionIn  EntryDirection = "IN"
    DirectionOut EntryDirection = "OUT"
)

// LedgerEntry is one value movement. Append-only; never mutated or deleted.
// Amount is signed: positive for IN, negative for OUT.
type LedgerEntry struct {
    ID           string         `json:"id"`
    Time         time.Time      `json:"time"`
    Direction    EntryDirection `json:"direction"`
    Amount       float64        `json:"amount"`
    Token        string         `json:"token"`
    Network      string         `json:"network"`
    Counterparty string         `json:"counterparty"`
    Memo         string         `json:"memo"`
    TxRef        string         `json:"txRef,omitempty"`
}

// TreasuryState aggregates the ledger: cumulative fiat revenue from IN
// entries, cumulative cost from OUT entries, audit count, per-asset balances,
// and the full ordered entry sequence (most recent first).
type TreasuryState struct {
    Revenue   float64            `json:"revenue"`
    InfraCost float64            `json:"infraCost"`
    Audits    int                `json:"audits"`
    Balances  map[string]float64 `json:"balances"`
    Entries   []LedgerEntry      `json:"transactions"`
}

// Clone returns an independently ownable copy: entries and balances are
// copied, not shared, so a reader never observes a mutation mid-read.
func (s TreasuryState) Clone() TreasuryState {
    out := s
    out.Balances = make(map[string]float64, len(s.Balances))
    for k, v := range s.Balances {
        out.Balances[k] = v
    }
    out.Entries = make([]LedgerEntry, len(s.Entries))
    copy(out.Entries, s.Entries)
    return out
}

// NetPL is revenue minus cumulative infrastructure cost.
func (s TreasuryState) NetPL() float64 { return s.Revenue - s.InfraCost }

// MarginPct is net P/L over revenue as a percentage, 0 when revenue is 0.
func (s TreasuryState) MarginPct() float64 {
    if s.Revenue == 0 {
        return 0
    }
    return (s.Revenue - s.InfraCost) / s.Revenue * 100
}

// DefaultTreasuryState seeds the spendable USDC float used to settle gated
// calls before any income has been recorded.
func DefaultTreasuryState() TreasuryState {
    return TreasuryState{
        Balances: map[string]float64{"USDC": 1.0},
        Entries:  []LedgerEntry{},
    }
}

type EventType string

const (
    EventInfo     EventType = "info"
    EventSuccess  EventType = "success"
    EventWarning  EventType = "warning"
    EventError    EventType = "error"
    EventProtocol EventType = "x402"
    EventPayment  EventType = "payment"
)

// LogEvent is one entry in the ordered observation stream an audit run emits.
type LogEvent struct {
    Timestamp time.Time `json:"timestamp"`
    Type      EventType `json:"type"`
    Message   string    `json:"message"`
    Data      string    `json:"data,omitempty"`
}

func (e LogEvent) String() string {
    return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Type, e.Message)
}
