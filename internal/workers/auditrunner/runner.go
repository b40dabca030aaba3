// Package auditrunner tracks orchestration runs and executes them on a small
// worker pool. Each run owns its ordered event log; the registry is the only
// shared structure and is mutex-guarded.
package auditrunner

import (
    "context"
    "errors"
    "log/slog"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/jkumari08/vigil-audit-protocol/internal/domain"
    "github.com/jkumari08/vigil-audit-protocol/internal/services/audit"
)

type Status string

const (
    StatusQueued    Status = "queued"
    StatusRunning   Status = "running"
    StatusCompleted Status = "completed"
    StatusFailed    Status = "failed"
)

// Run is one tracked orchestration. Events are append-only in completion
// order; Report is set only on the completed path.
type Run struct {
    ID         string              `json:"id"`
    TxHash     string              `json:"txHash"`
    Payer      string              `json:"payer"`
    Status     Status              `json:"status"`
    State      audit.State         `json:"state"`
    Events     []domain.LogEvent   `json:"events"`
    Report     *domain.AuditReport `json:"report,omitempty"`
    Error      string              `json:"error,omitempty"`
    ErrorKind  domain.Kind         `json:"errorKind,omitempty"`
    CreatedAt  time.Time           `json:"createdAt"`
    FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

var ErrQueueFull = errors.New("audit queue full")

type Registry struct {
    mu    sync.RWMutex
    runs  map[string]*Run
    queue chan string
    now   func() time.Time
}

func NewRegistry(buffer int) *Registry {
    if buffer < 1 {
        buffer = 16
    }
    return &Registry{
        runs:  make(map[string]*Run),
        queue: make(chan string, buffer),
        now:   time.Now,
    }
}

// Register records a run without queueing it. The caller owns processing;
// the workers never see the run. Used by the blocking request path.
func (r *Registry) Register(txHash, payer string) string {
    run := &Run{
        ID:        uuid.NewString(),
        TxHash:    txHash,
        Payer:     payer,
        Status:    StatusQueued,
        State:     audit.StateSubmitted,
        Events:    []domain.LogEvent{},
        CreatedAt: r.now(),
    }

    r.mu.Lock()
    r.runs[run.ID] = run
    r.mu.Unlock()
    return run.ID
}

// Enqueue registers a run and queues it for the workers.
func (r *Registry) Enqueue(txHash, payer string) (string, error) {
    id := r.Register(txHash, payer)
    select {
    case r.queue <- id:
        return id, nil
    default:
        r.mu.Lock()
        delete(r.runs, id)
        r.mu.Unlock()
        return "", ErrQueueFull
    }
}

// Get returns an independently ownable snapshot of the run.
func (r *Registry) Get(id string) (Run, bool) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    run, ok := r.runs[id]
    if !ok {
        return Run{}, false
    }
    out := *run
    out.Events = make([]domain.LogEvent, len(run.Events))
    copy(out.Events, run.Events)
    return out, true
}

func (r *Registry) appendEvent(id string, ev domain.LogEvent) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if run, ok := r.runs[id]; ok {
        run.Events = append(run.Events, ev)
    }
}

func (r *Registry) setState(id string, st audit.State) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if run, ok := r.runs[id]; ok {
        run.State = st
    }
}

// claim moves a run from queued to running. Exactly one caller wins; any
// other processor seeing the run must leave it alone.
func (r *Registry) claim(id string) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    run, ok := r.runs[id]
    if !ok || run.Status != StatusQueued {
        return false
    }
    run.Status = StatusRunning
    return true
}

func (r *Registry) finish(id string, report *domain.AuditReport, err error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    run, ok := r.runs[id]
    if !ok {
        return
    }
    now := r.now()
    run.FinishedAt = &now
    if err != nil {
        run.Status = StatusFailed
        run.Error = err.Error()
        run.ErrorKind = domain.KindOf(err)
        return
    }
    run.Status = StatusCompleted
    run.Report = report
}

// Process executes the run synchronously through svc, recording state
// transitions and events as they complete. Used by both the worker pool and
// the blocking request path; the claim guarantees a run executes at most
// once even if it reaches more than one processor.
func Process(ctx context.Context, reg *Registry, svc *audit.Service, id string) error {
    run, ok := reg.Get(id)
    if !ok {
        return errors.New("unknown run " + id)
    }
    if !reg.claim(id) {
        return nil
    }
    report, err := svc.Run(ctx, run.TxHash, run.Payer, audit.Hooks{
        Event: func(ev domain.LogEvent) { reg.appendEvent(id, ev) },
        State: func(st audit.State) { reg.setState(id, st) },
    })
    reg.finish(id, report, err)
    return err
}

// Start launches worker goroutines consuming the queue until ctx is done.
func Start(ctx context.Context, reg *Registry, svc *audit.Service, concurrency int, log *slog.Logger) {
    if concurrency < 1 {
        return
    }
    for i := 0; i < concurrency; i++ {
        go func(idx int) {
            for {
                select {
                case <-ctx.Done():
                    return
                case id := <-reg.queue:
                    if err := Process(ctx, reg, svc, id); err != nil {
                        log.Warn("audit run failed", "worker", idx, "run", id, "err", err)
                    }
                }
            }
        }(i)
    }
}
