package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHTTPProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/search") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("origin") != "JFK" {
			t.Fatalf("origin not forwarded: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("api key not forwarded: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fares":[
			{"origin":"JFK","destination":"LAX","airline":"AA","flight_number":"AA100","price":"482.50","currency":"USD","stops":0,"cabin":"economy","departure_time":"2026-10-01T09:00:00Z"},
			{"origin":"JFK","destination":"LAX","airline":"DL","flight_number":"DL200","price":"not-a-number","currency":"USD"}
		]}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPOptions{Name: "test", BaseURL: srv.URL, APIKey: "secret"}, testLogger())
	quotes, err := provider.Search(context.Background(), testCriteria())
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(quotes) != 1 {
		t.Fatalf("unparseable prices must be skipped, got %d quotes", len(quotes))
	}
	quote := quotes[0]
	if !quote.Price.Equal(decimal.RequireFromString("482.50")) {
		t.Fatalf("unexpected price %s", quote.Price)
	}
	if quote.Provider != "test" || quote.Airline != "AA" {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if quote.DepartureTime.IsZero() {
		t.Fatal("departure time should be parsed")
	}
}

func TestHTTPProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPOptions{Name: "test", BaseURL: srv.URL}, testLogger())
	_, err := provider.Search(context.Background(), testCriteria())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("429 must map to ErrRateLimited, got %v", err)
	}
}

func TestHTTPProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error_type":"upstream","description":"GDS timeout"}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(HTTPOptions{Name: "test", BaseURL: srv.URL}, testLogger())
	_, err := provider.Search(context.Background(), testCriteria())
	if err == nil || !strings.Contains(err.Error(), "GDS timeout") {
		t.Fatalf("api error description should surface, got %v", err)
	}
}

func TestHTTPProviderMissingBaseURL(t *testing.T) {
	provider := NewHTTPProvider(HTTPOptions{Name: "test"}, testLogger())
	if _, err := provider.Search(context.Background(), testCriteria()); err == nil {
		t.Fatal("missing base url must error")
	}
}
