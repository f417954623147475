package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// Circuit breaker settings for each provider of a Strategy.
const (
	breakerMaxFailures  = 3
	breakerResetTimeout = 30 * time.Second
)

type member struct {
	provider Provider
	breaker  *amerrors.CircuitBreaker
}

// Strategy is an ordered list of providers, highest priority first. A call
// goes to the first provider whose breaker is closed and moves down the list
// when it fails. The last provider is always tried.
type Strategy struct {
	members []*member
	logger  *slog.Logger

	mu     sync.RWMutex
	active int
}

// NewStrategy creates a strategy over providers in priority order.
func NewStrategy(logger *slog.Logger, providers ...Provider) *Strategy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Strategy{logger: logger}
	for _, p := range providers {
		s.members = append(s.members, &member{
			provider: p,
			breaker: amerrors.NewCircuitBreaker(string(p.Kind())+":"+p.Model(),
				amerrors.WithMaxFailures(breakerMaxFailures),
				amerrors.WithResetTimeout(breakerResetTimeout)),
		})
	}
	return s
}

// Providers returns the providers in priority order.
func (s *Strategy) Providers() []Provider {
	out := make([]Provider, len(s.members))
	for i, m := range s.members {
		out[i] = m.provider
	}
	return out
}

// Active returns the provider that served the most recent call, or the
// primary before any call.
func (s *Strategy) Active() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.members) == 0 {
		return nil
	}
	return s.members[s.active].provider
}

// Degraded reports whether the last call was served by a fallback provider.
func (s *Strategy) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active > 0
}

// Settled reports whether model is the highest-priority provider whose
// breaker is not open. An answer from an unsettled fallback means a provider
// above it failed but may still recover.
func (s *Strategy) Settled(model string) bool {
	for _, m := range s.members {
		if m.provider.Model() == model {
			return true
		}
		if m.breaker.State() != amerrors.StateOpen {
			return false
		}
	}
	return false
}

// Do runs fn against providers in order until one succeeds. A failure
// caused by ctx ends the walk without blaming the provider.
func (s *Strategy) Do(ctx context.Context, fn func(Provider) error) error {
	if len(s.members) == 0 {
		return amerrors.New(amerrors.ErrCodeProviderUnavailable, "no embedding provider configured", nil)
	}

	var lastErr error
	last := len(s.members) - 1
	for i, m := range s.members {
		if i < last && !m.breaker.Allow() {
			s.logger.Debug("embedding_provider_skipped",
				slog.String("provider", m.breaker.Name()),
				slog.String("breaker", m.breaker.State().String()))
			continue
		}

		err := fn(m.provider)
		if err == nil {
			m.breaker.RecordSuccess()
			s.setActive(i)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		m.breaker.RecordFailure()
		lastErr = err
		if i < last {
			s.logger.Warn("embedding_fallback",
				slog.String("from", m.breaker.Name()),
				slog.String("to", string(s.members[i+1].provider.Kind())+":"+s.members[i+1].provider.Model()),
				slog.String("error", err.Error()))
		}
	}
	return lastErr
}

func (s *Strategy) setActive(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != i {
		s.logger.Info("embedding_provider_active",
			slog.String("provider", string(s.members[i].provider.Kind())),
			slog.String("model", s.members[i].provider.Model()))
	}
	s.active = i
}

// Close closes every provider.
func (s *Strategy) Close() error {
	var firstErr error
	for _, m := range s.members {
		if err := m.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
