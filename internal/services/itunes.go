package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/shared"
	"golang.org/x/time/rate"
)

const itunesBaseURL = "https://itunes.apple.com"

// ItunesOpts configures an [ItunesService].
type ItunesOpts struct {
	BaseURL    string
	Country    string
	HTTPClient *http.Client
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	Logger    *log.Logger
}

// ItunesService implements [Directory] with the iTunes search API.
type ItunesService struct {
	baseURL    string
	country    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ Directory = (*ItunesService)(nil)

// NewItunesService creates a new directory client.
func NewItunesService(opts ItunesOpts) *ItunesService {
	if opts.BaseURL == "" {
		opts.BaseURL = itunesBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}

	return &ItunesService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		country:    opts.Country,
		httpClient: opts.HTTPClient,
		limiter:    limiter,
		logger:     shared.WithLogger(opts.Logger, "service", "itunes"),
	}
}

// Search queries /search?media=podcast for term.
func (s *ItunesService) Search(ctx context.Context, term string) (*SearchResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is empty", shared.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("media", "podcast")
	params.Set("term", term)
	if s.country != "" {
		params.Set("country", s.country)
	}

	var resp SearchResponse
	if err := s.doRequest(ctx, "/search?"+params.Encode(), &resp); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("search cancelled", "term", term)
		} else {
			s.logger.Error("search failed", "term", term, "error", err)
		}
		return nil, err
	}

	s.logger.Debug("search complete", "term", term, "results", resp.ResultCount)
	return &resp, nil
}

func (s *ItunesService) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", shared.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: directory API error: status %d", shared.ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", shared.ErrParse, err)
	}
	return nil
}
