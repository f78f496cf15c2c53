package query

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Session serializes rebuilds: starting a new one cancels the one in
// flight, and only the result of the newest generation is accepted.
type Session struct {
	loader *Loader
	logger *zap.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewSession(loader *Loader, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{loader: loader, logger: logger}
}

// Begin cancels any rebuild in progress and returns the context and
// generation for the next one.
func (s *Session) Begin(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.gen++
	return ctx, s.gen
}

// Rebuild runs the loader for a generation obtained from Begin. Failures
// are reported in Result.Err.
func (s *Session) Rebuild(ctx context.Context, gen uint64, req Request) Result {
	res, err := s.loader.Load(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("rebuild failed", zap.Uint64("generation", gen), zap.Error(err))
		}
		return Result{Request: req, Generation: gen, Err: err}
	}
	res.Generation = gen
	return *res
}

// Current reports whether gen is the newest generation.
func (s *Session) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// Accept reports whether res should replace what is on screen. Results of
// superseded generations are dropped.
func (s *Session) Accept(res Result) bool {
	if !s.Current(res.Generation) {
		s.logger.Debug("dropping stale rebuild", zap.Uint64("generation", res.Generation))
		return false
	}
	return true
}

// Close cancels the rebuild in flight, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
