package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
)

// SyncState represents the current state of a slot's re-poll.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SyncStatus holds the re-poll state for a single slot.
type SyncStatus struct {
	Slot       string           `json:"slot"`
	SourceType model.SourceType `json:"source"`
	State      SyncState        `json:"state"`
	LastSync   time.Time        `json:"last_sync"`
	LastResult *Result          `json:"last_result,omitempty"`
	Error      string           `json:"error,omitempty"`
	AuthFailed bool             `json:"auth_failed,omitempty"`
}

// defaultPollTimeout bounds a single re-poll when none is configured.
const defaultPollTimeout = 60 * time.Second

// pollEntry holds a registered engine and the source it re-polls.
type pollEntry struct {
	engine    *Engine
	src       source.ChangeSource
	triggerCh chan struct{}
}

// Poller re-polls registered sources in the background. Each poll asks
// the source for its latest position and feeds a synthetic notification
// into the slot's engine, so missed push deliveries are caught up.
type Poller struct {
	entries  []*pollEntry
	statuses map[string]*SyncStatus
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       gosync.WaitGroup
	mu       gosync.Mutex
	running  bool
}

// NewPoller creates a Poller. An interval <= 0 disables the ticker; the
// poller then only runs on Trigger.
func NewPoller(interval, timeout time.Duration, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		statuses: make(map[string]*SyncStatus),
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Register adds an engine and the source it should re-poll.
func (p *Poller) Register(e *Engine, src source.ChangeSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, &pollEntry{
		engine:    e,
		src:       src,
		triggerCh: make(chan struct{}, 1),
	})
	p.statuses[e.Slot()] = &SyncStatus{
		Slot:       e.Slot(),
		SourceType: src.Type(),
		State:      SyncIdle,
	}
}

// Start launches one polling goroutine per registered engine.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	for _, entry := range p.entries {
		p.wg.Add(1)
		go p.pollLoop(entry)
	}
}

// Stop halts all polling goroutines and waits for in-flight polls.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Trigger requests an immediate poll of every registered slot. It never
// blocks; a trigger already pending absorbs the new one.
func (p *Poller) Trigger() {
	p.mu.Lock()
	entries := make([]*pollEntry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	for _, entry := range entries {
		select {
		case entry.triggerCh <- struct{}{}:
		default:
		}
	}
}

// RunOnce polls every registered slot synchronously and returns the
// first error encountered.
func (p *Poller) RunOnce(ctx context.Context) ([]Result, error) {
	p.mu.Lock()
	entries := make([]*pollEntry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	var (
		results  []Result
		firstErr error
	)
	for _, entry := range entries {
		res, err := p.poll(ctx, entry)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("polling %s: %w", entry.engine.Slot(), err)
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// Statuses returns the current re-poll status of all registered slots.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.entries))
	for _, entry := range p.entries {
		statuses = append(statuses, *p.statuses[entry.engine.Slot()])
	}
	return statuses
}

// pollLoop runs the polling loop for a single slot.
func (p *Poller) pollLoop(entry *pollEntry) {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C

		// Do an initial poll immediately
		p.pollWithTimeout(entry)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-tick:
			p.pollWithTimeout(entry)
		case <-entry.triggerCh:
			p.pollWithTimeout(entry)
		}
	}
}

func (p *Poller) pollWithTimeout(entry *pollEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, _ = p.poll(ctx, entry)
}

// poll asks the source for its latest position and hands the engine a
// synthetic notification for it.
func (p *Poller) poll(ctx context.Context, entry *pollEntry) (Result, error) {
	slot := entry.engine.Slot()
	p.setStatus(slot, func(s *SyncStatus) { s.State = SyncRunning })

	latest, err := entry.src.LatestPosition(ctx)
	if err != nil {
		p.fail(slot, err)
		return Result{}, fmt.Errorf("reading latest position: %w", err)
	}

	res, err := entry.engine.Handle(ctx, model.Notification{
		Mailbox:    slot,
		Position:   latest,
		DeliveryID: "poll-" + uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		p.fail(slot, err)
		return res, err
	}

	p.setStatus(slot, func(s *SyncStatus) {
		s.State = SyncIdle
		s.Error = ""
		s.AuthFailed = false
		s.LastSync = time.Now()
		s.LastResult = &res
	})
	return res, nil
}

func (p *Poller) fail(slot string, err error) {
	auth := source.IsAuthError(err)
	if auth {
		p.logger.Error("re-poll authentication failed; update the stored credential",
			"slot", slot, "error", err)
	} else {
		p.logger.Warn("re-poll failed", "slot", slot, "error", err)
	}
	p.setStatus(slot, func(s *SyncStatus) {
		s.State = SyncError
		s.Error = err.Error()
		s.AuthFailed = auth
	})
}

// setStatus applies update to the status of slot.
func (p *Poller) setStatus(slot string, update func(*SyncStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status, ok := p.statuses[slot]; ok {
		update(status)
	}
}
