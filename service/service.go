// Package service is the host side of the plugin: it schedules polls on the
// configured interval and pushes each batch through transform, validation and storage.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
	"github.com/eddielth/pt100-south/storage"
	"github.com/eddielth/pt100-south/transformer"
	"github.com/eddielth/pt100-south/validator"
)

// DefaultPollInterval is used when the plugin configuration has no pollInterval
const DefaultPollInterval = 5 * time.Second

// Stats counts poll outcomes
type Stats struct {
	Polls        uint64    `json:"polls"`
	Failures     uint64    `json:"failures"`
	Readings     uint64    `json:"readings"`
	Dropped      uint64    `json:"dropped"`
	LastPoll     time.Time `json:"last_poll"`
	LastError    string    `json:"last_error,omitempty"`
	PollInterval string    `json:"poll_interval"`
}

// Options configures a Service
type Options struct {
	Engine       *plugin.Engine
	Transformers *transformer.Manager
	Validator    validator.Validator
	Storage      *storage.Manager
	PollTimeout  time.Duration
}

// Service drives an initialized engine
type Service struct {
	engine       *plugin.Engine
	transformers *transformer.Manager
	validator    validator.Validator
	storage      *storage.Manager
	pollTimeout  time.Duration

	mu       sync.RWMutex
	interval time.Duration
	latest   plugin.Batch
	stats    Stats

	intervalChanged chan time.Duration
}

// New creates a service for an engine that has already been initialized
func New(opts Options) *Service {
	s := &Service{
		engine:          opts.Engine,
		transformers:    opts.Transformers,
		validator:       opts.Validator,
		storage:         opts.Storage,
		pollTimeout:     opts.PollTimeout,
		interval:        DefaultPollInterval,
		intervalChanged: make(chan time.Duration, 1),
	}

	if settings, err := opts.Engine.Config().Settings(); err == nil && settings.PollInterval > 0 {
		s.interval = settings.PollInterval
	}
	return s
}

// Engine returns the driven engine
func (s *Service) Engine() *plugin.Engine {
	return s.engine
}

// Interval returns the current poll interval
func (s *Service) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// Latest returns the most recent delivered batch
func (s *Service) Latest() plugin.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(plugin.Batch, len(s.latest))
	copy(out, s.latest)
	return out
}

// Stats returns a snapshot of the poll counters
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.PollInterval = s.interval.String()
	return stats
}

// Run polls until ctx is cancelled
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	logger.Info("polling every %v", s.Interval())

	for {
		select {
		case <-ctx.Done():
			return
		case interval := <-s.intervalChanged:
			ticker.Reset(interval)
			logger.Info("poll interval changed to %v", interval)
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single poll cycle and delivers its batch. The returned batch is what was delivered.
func (s *Service) PollOnce(ctx context.Context) (plugin.Batch, error) {
	pollCtx := ctx
	if s.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, s.pollTimeout)
		defer cancel()
	}

	batch, err := s.engine.Poll(pollCtx)

	s.mu.Lock()
	s.stats.Polls++
	s.stats.LastPoll = time.Now()
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
		s.mu.Unlock()
		logger.Warn("no data this cycle: %v", err)
		return nil, err
	}
	s.stats.LastError = ""
	s.mu.Unlock()

	delivered := s.deliver(batch)

	s.mu.Lock()
	s.latest = delivered
	s.stats.Readings += uint64(len(delivered))
	s.stats.Dropped += uint64(len(batch) - len(delivered))
	s.mu.Unlock()

	return delivered, nil
}

func (s *Service) deliver(batch plugin.Batch) plugin.Batch {
	if s.transformers != nil {
		batch = s.transformers.TransformBatch(batch)
	}

	if s.validator != nil {
		var errs []error
		batch, errs = validator.Filter(s.validator, batch)
		for _, err := range errs {
			logger.Warn("dropping reading: %v", err)
		}
	}

	if s.storage != nil {
		s.storage.Store(batch)
	}

	return batch
}

// Reconfigure applies new plugin configuration values over the current configuration.
// A changed pollInterval takes effect on the running loop.
func (s *Service) Reconfigure(values map[string]string) error {
	return s.Apply(s.engine.Config().WithValues(values))
}

// Apply replaces the plugin configuration
func (s *Service) Apply(cfg plugin.Configuration) error {
	if err := s.engine.Reconfigure(cfg); err != nil {
		return err
	}

	settings, err := s.engine.Config().Settings()
	if err != nil || settings.PollInterval <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.PollInterval != s.interval {
		s.interval = settings.PollInterval
		// Keep only the newest interval if the loop has not picked up the last one
		select {
		case <-s.intervalChanged:
		default:
		}
		s.intervalChanged <- settings.PollInterval
	}
	return nil
}
