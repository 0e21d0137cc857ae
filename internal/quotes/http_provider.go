package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

const searchPath = "/v1/search"

// HTTPOptions parameterise an HTTP quote provider.
type HTTPOptions struct {
	Name      string
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// HTTPProvider fetches fares from a provider's search API.
type HTTPProvider struct {
	opts    HTTPOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewHTTPProvider constructs an HTTP-backed provider.
func NewHTTPProvider(opts HTTPOptions, logger zerolog.Logger) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger.With().Str("component", "provider").Str("provider", opts.Name).Logger(),
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.opts.Name }

// Search queries the provider's fare search endpoint.
func (p *HTTPProvider) Search(ctx context.Context, criteria Criteria) ([]domain.Quote, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("provider %s: base url not configured", p.opts.Name)
	}

	params := url.Values{}
	params.Set("origin", criteria.Origin)
	params.Set("destination", criteria.Destination)
	params.Set("departure", criteria.Departure.Format("2006-01-02"))
	if criteria.Return != nil {
		params.Set("return", criteria.Return.Format("2006-01-02"))
	}
	params.Set("adults", strconv.Itoa(criteria.Adults))
	if criteria.Cabin != "" {
		params.Set("cabin", string(criteria.Cabin))
	}
	if criteria.MaxStops >= 0 {
		params.Set("max_stops", strconv.Itoa(criteria.MaxStops))
	}

	endpoint := p.baseURL + searchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(p.opts.Name, resp.StatusCode, payload)
	}

	var body searchResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.opts.Name, err)
	}

	quotes := make([]domain.Quote, 0, len(body.Fares))
	for _, fare := range body.Fares {
		price, err := decimal.NewFromString(fare.Price)
		if err != nil {
			p.logger.Debug().Str("price", fare.Price).Msg("skipping fare with unparseable price")
			continue
		}
		quote := domain.Quote{
			Provider:     p.opts.Name,
			Origin:       fare.Origin,
			Destination:  fare.Destination,
			Airline:      fare.Airline,
			FlightNumber: fare.FlightNumber,
			Price:        price,
			Currency:     fare.Currency,
			Stops:        fare.Stops,
			Cabin:        domain.CabinClass(fare.Cabin),
			ObservedAt:   time.Now().UTC(),
		}
		if fare.DepartureTime != "" {
			if t, err := time.Parse(time.RFC3339, fare.DepartureTime); err == nil {
				quote.DepartureTime = t
			}
		}
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

type searchResponse struct {
	Fares []fareEntry `json:"fares"`
}

type fareEntry struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	Airline       string `json:"airline"`
	FlightNumber  string `json:"flight_number"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	Stops         int    `json:"stops"`
	Cabin         string `json:"cabin"`
	DepartureTime string `json:"departure_time"`
}

type errorResponse struct {
	ErrorType   string `json:"error_type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", provider, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", provider, status)
}

var _ Provider = (*HTTPProvider)(nil)

// StaticProvider returns canned quotes; used by the simulate command and tests.
type StaticProvider struct {
	ProviderName string
	Quotes       []domain.Quote
	Err          error
}

// Name implements Provider.
func (s *StaticProvider) Name() string {
	if s.ProviderName == "" {
		return "static"
	}
	return s.ProviderName
}

// Search implements Provider.
func (s *StaticProvider) Search(_ context.Context, _ Criteria) ([]domain.Quote, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Quotes, nil
}

var _ Provider = (*StaticProvider)(nil)
