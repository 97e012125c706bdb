package render

import (
	"context"
	"errors"
	"time"

	"github.com/renderfetch/renderfetch/internal/extract"
)

// Stats is the point-in-time view reported by the stats endpoint.
type Stats struct {
	ActiveOperations int  `json:"active_operations"`
	MaxConcurrent    int  `json:"max_concurrent"`
	InstanceHeld     bool `json:"instance_held"`
}

// Service bundles the executor with the extraction pipeline and exposes the
// three logical operations the HTTP surface serves.
type Service struct {
	executor       *Executor
	pool           *Pool
	pipeline       *extract.Pipeline
	captureTimeout time.Duration
}

// NewService wires the operations layer. captureTimeout bounds the raw-markup
// capture that feeds the extraction pipeline.
func NewService(executor *Executor, pool *Pool, pipeline *extract.Pipeline, captureTimeout time.Duration) *Service {
	if captureTimeout <= 0 {
		captureTimeout = 10 * time.Second
	}
	return &Service{
		executor:       executor,
		pool:           pool,
		pipeline:       pipeline,
		captureTimeout: captureTimeout,
	}
}

// RawHTML renders the URL and returns the full page markup.
func (s *Service) RawHTML(ctx context.Context, url string) (string, error) {
	return s.executor.Perform(ctx, url, func(ctx context.Context, page Page) (string, error) {
		return page.HTML(ctx)
	})
}

// VisibleText renders the URL and returns its normalized visible text.
func (s *Service) VisibleText(ctx context.Context, url string) (string, error) {
	return s.executor.Perform(ctx, url, func(ctx context.Context, page Page) (string, error) {
		text, err := page.VisibleText(ctx)
		if err != nil {
			return "", err
		}
		return extract.Normalize(text), nil
	})
}

// Article renders the URL, captures the markup, and runs the extraction
// pipeline over it.
func (s *Service) Article(ctx context.Context, url string) (string, error) {
	return s.executor.Perform(ctx, url, func(ctx context.Context, page Page) (string, error) {
		captureCtx, cancel := context.WithTimeout(ctx, s.captureTimeout)
		markup, err := page.HTML(captureCtx)
		cancel()
		if err != nil {
			return "", timeoutIfExpired(captureCtx, err)
		}

		text, err := s.pipeline.MainContent(markup, url)
		if err != nil {
			if errors.Is(err, extract.ErrNoContent) {
				return "", WrapErr(KindExtraction, err, "no content extracted from %s", url)
			}
			return "", WrapErr(KindExtraction, err, "extraction pipeline failed")
		}
		return text, nil
	})
}

// Stats reports in-flight load and pool state.
func (s *Service) Stats() Stats {
	gate := s.executor.Gate()
	return Stats{
		ActiveOperations: gate.Active(),
		MaxConcurrent:    gate.Max(),
		InstanceHeld:     s.pool.Held(),
	}
}
