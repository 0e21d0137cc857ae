package quotes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/domain"
)

// ErrRateLimited indicates a provider's request budget is exhausted for the
// current window.
var ErrRateLimited = errors.New("quotes: provider rate limited")

// Criteria is the normalized search request sent to providers.
type Criteria struct {
	Origin      string
	Destination string
	Departure   time.Time
	Return      *time.Time
	Adults      int
	Children    int
	Cabin       domain.CabinClass
	MaxStops    int
}

// Provider is one upstream fare source.
type Provider interface {
	Name() string
	Search(ctx context.Context, criteria Criteria) ([]domain.Quote, error)
}

// ProviderError records a per-provider failure alongside partial results.
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Options tune the multi-provider source.
type Options struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	MinResults     int
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MinResults <= 0 {
		o.MinResults = 3
	}
	return o
}

// Source fans a search out across providers under a fallback strategy and
// per-provider rate limiting. Partial results are always returned.
type Source struct {
	providers []Provider
	strategy  Strategy
	limiter   *RateLimiter
	opts      Options
	logger    zerolog.Logger
}

// NewSource constructs a quote source.
func NewSource(providers []Provider, strategy Strategy, limiter *RateLimiter, opts Options, logger zerolog.Logger) *Source {
	if strategy == nil {
		strategy = Cascade{}
	}
	return &Source{
		providers: providers,
		strategy:  strategy,
		limiter:   limiter,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "quote_source").Logger(),
	}
}

// FetchQuotes runs the configured strategy. Every returned quote carries its
// provider identity; normalization and validation happen here so nothing
// malformed reaches the detector.
func (s *Source) FetchQuotes(ctx context.Context, criteria Criteria) ([]domain.Quote, []ProviderError) {
	quotes, errs := s.strategy.Fetch(ctx, s, criteria)

	normalized := quotes[:0]
	for _, quote := range quotes {
		quote.Normalize()
		if quote.ObservedAt.IsZero() {
			quote.ObservedAt = time.Now().UTC()
		}
		normalized = append(normalized, quote)
	}
	return normalized, errs
}

// fetchOne queries a single provider with rate limiting, timeout, and a
// bounded retry budget with jittered exponential backoff.
func (s *Source) fetchOne(ctx context.Context, provider Provider, criteria Criteria) ([]domain.Quote, error) {
	if s.limiter != nil && !s.limiter.Acquire(provider.Name()) {
		return nil, ErrRateLimited
	}

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.opts.RetryBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff / 2)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		quotes, err := provider.Search(attemptCtx, criteria)
		cancel()
		if err == nil {
			return quotes, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug().Err(err).Str("provider", provider.Name()).Int("attempt", attempt+1).Msg("provider fetch failed")
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.opts.MaxRetries, lastErr)
}

// Strategy decides how providers are tried.
type Strategy interface {
	Fetch(ctx context.Context, source *Source, criteria Criteria) ([]domain.Quote, []ProviderError)
}

// Cascade tries providers in order and stops at the first that returns
// usable quotes.
type Cascade struct{}

// Fetch implements Strategy.
func (Cascade) Fetch(ctx context.Context, source *Source, criteria Criteria) ([]domain.Quote, []ProviderError) {
	var errs []ProviderError
	for _, provider := range source.providers {
		quotes, err := source.fetchOne(ctx, provider, criteria)
		if err != nil {
			errs = append(errs, ProviderError{Provider: provider.Name(), Err: err})
			continue
		}
		if len(quotes) > 0 {
			return quotes, errs
		}
	}
	return nil, errs
}

// Parallel fans out to every provider and merges all results.
type Parallel struct{}

// Fetch implements Strategy.
func (Parallel) Fetch(ctx context.Context, source *Source, criteria Criteria) ([]domain.Quote, []ProviderError) {
	type outcome struct {
		provider string
		quotes   []domain.Quote
		err      error
	}

	results := make(chan outcome, len(source.providers))
	var wg sync.WaitGroup
	for _, provider := range source.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			quotes, err := source.fetchOne(ctx, p, criteria)
			results <- outcome{provider: p.Name(), quotes: quotes, err: err}
		}(provider)
	}
	wg.Wait()
	close(results)

	var quotes []domain.Quote
	var errs []ProviderError
	for result := range results {
		if result.err != nil {
			errs = append(errs, ProviderError{Provider: result.provider, Err: result.err})
			continue
		}
		quotes = append(quotes, result.quotes...)
	}
	return quotes, errs
}

// Priority walks providers in configured order and exits early once enough
// quotes have accumulated.
type Priority struct {
	MinResults int
}

// Fetch implements Strategy.
func (p Priority) Fetch(ctx context.Context, source *Source, criteria Criteria) ([]domain.Quote, []ProviderError) {
	minResults := p.MinResults
	if minResults <= 0 {
		minResults = source.opts.MinResults
	}

	var quotes []domain.Quote
	var errs []ProviderError
	for _, provider := range source.providers {
		found, err := source.fetchOne(ctx, provider, criteria)
		if err != nil {
			errs = append(errs, ProviderError{Provider: provider.Name(), Err: err})
			continue
		}
		quotes = append(quotes, found...)
		if len(quotes) >= minResults {
			break
		}
	}
	return quotes, errs
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string) Strategy {
	switch name {
	case "parallel":
		return Parallel{}
	case "priority":
		return Priority{}
	default:
		return Cascade{}
	}
}

var (
	_ Strategy = Cascade{}
	_ Strategy = Parallel{}
	_ Strategy = Priority{}
)
