package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorekeeper/internal/chore"
)

const (
	DefaultScanInterval = time.Minute
	signalLogRetention  = 30 * 24 * time.Hour
)

// ScanLoop periodically classifies every chore's due window and hands the
// verdicts to the manager.
type ScanLoop struct {
	mu          sync.RWMutex
	manager     *Manager
	locker      *Locker
	interval    time.Duration
	logger      *slog.Logger
	lastCleanup time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScanLoop creates a scan loop. Operations on a chore hold its key in
// locker while the verdict is applied.
func NewScanLoop(m *Manager, locker *Locker, interval time.Duration, logger *slog.Logger) *ScanLoop {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &ScanLoop{
		manager:  m,
		locker:   locker,
		interval: interval,
		logger:   logger.With("component", "scanner"),
	}
}

// Start begins the loop.
func (s *ScanLoop) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the running tick to finish.
func (s *ScanLoop) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one scan and returns the number of verdicts applied.
func (s *ScanLoop) Tick(ctx context.Context) int {
	chores, err := s.manager.chores.List(ctx)
	if err != nil {
		s.logger.Error("list chores", "error", err)
		return 0
	}

	now := s.manager.clock.Now()
	applied := 0
	for _, r := range chore.Scan(chores, now) {
		if r.Class == chore.ClassNone {
			continue
		}
		if ctx.Err() != nil {
			return applied
		}
		unlock := s.locker.Lock(r.ChoreID)
		err := s.manager.RecordScanResult(ctx, r)
		unlock()
		if err != nil {
			s.logger.Error("record scan result", "chore_id", r.ChoreID, "user_id", r.UserID, "class", r.Class, "error", err)
			continue
		}
		applied++
	}

	s.cleanup(ctx, now)
	return applied
}

func (s *ScanLoop) cleanup(ctx context.Context, now time.Time) {
	if now.Sub(s.lastCleanup) < 24*time.Hour {
		return
	}
	s.lastCleanup = now
	if err := s.manager.sent.CleanupSent(ctx, now.Add(-signalLogRetention)); err != nil {
		s.logger.Error("cleanup signal log", "error", err)
	}
}
