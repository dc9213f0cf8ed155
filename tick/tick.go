// Package tick polls the node for new blocks and advances the invalidation bus.
package tick

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"workhard-dashboard/bus"
	"workhard-dashboard/metrics"
)

// Heads is the part of the node the source polls.
type Heads interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, height uint64) (int64, error)
}

// Source is the block tick source.
type Source struct {
	heads    Heads
	bus      *bus.Bus
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	height    uint64
	lastPoll  time.Time
	polls     int64
	failures  int64
	lastError string

	timesMu sync.Mutex
	times   map[uint64]int64
}

// New returns a source polling heads every interval.
func New(heads Heads, b *bus.Bus, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Source {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Source{
		heads:    heads,
		bus:      b,
		interval: interval,
		logger:   logger,
		metrics:  m,
		times:    make(map[uint64]int64),
	}
}

// Start begins polling in the background.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("tick source is already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info("starting tick source", zap.Duration("interval", s.interval))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.stop
		cancel()
	}()
	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("tick source is not running")
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("tick source stopped")
	return nil
}

// Run polls until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.loop(ctx)
	return ctx.Err()
}

func (s *Source) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Source) loop(ctx context.Context) {
	if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("block poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("block poll failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Poll reads the latest block once and advances the bus when it moved. A node
// answering with an older block, as a lagging load-balanced backend does,
// leaves the height where it was.
func (s *Source) Poll(ctx context.Context) (uint64, error) {
	height, err := s.heads.BlockNumber(ctx)

	s.mu.Lock()
	s.polls++
	s.lastPoll = time.Now()
	if err != nil {
		s.failures++
		s.lastError = err.Error()
		s.mu.Unlock()
		s.metrics.TickFailed()
		return 0, fmt.Errorf("block number: %w", err)
	}
	if height < s.height {
		s.logger.Debug("node behind latest block", zap.Uint64("node", height), zap.Uint64("latest", s.height))
		height = s.height
	}
	s.height = height
	s.lastError = ""
	s.mu.Unlock()

	s.metrics.BlockHeight(height)
	if s.bus.Advance(height) {
		s.logger.Debug("new block", zap.Uint64("height", height))
	}
	return height, nil
}

// Height is the latest polled block.
func (s *Source) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

const timeWindow = 64

// Timestamp returns the time of the block at height. Only the most recent
// heights are remembered.
func (s *Source) Timestamp(ctx context.Context, height uint64) (int64, error) {
	s.timesMu.Lock()
	if ts, ok := s.times[height]; ok {
		s.timesMu.Unlock()
		return ts, nil
	}
	s.timesMu.Unlock()

	ts, err := s.heads.BlockTime(ctx, height)
	if err != nil {
		return 0, err
	}

	s.timesMu.Lock()
	defer s.timesMu.Unlock()
	for h := range s.times {
		if h+timeWindow < height {
			delete(s.times, h)
		}
	}
	s.times[height] = ts
	return ts, nil
}

// Stats is a point-in-time view of the source.
type Stats struct {
	Height    uint64    `json:"height"`
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	Polls     int64     `json:"polls"`
	Failures  int64     `json:"failures"`
	LastPoll  time.Time `json:"last_poll"`
	LastError string    `json:"last_error,omitempty"`
}

func (s *Source) Statistics() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Height:    s.height,
		Running:   s.running,
		Interval:  s.interval.String(),
		Polls:     s.polls,
		Failures:  s.failures,
		LastPoll:  s.lastPoll,
		LastError: s.lastError,
	}
}
