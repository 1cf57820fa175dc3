package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"golang.org/x/time/rate"
)

const ipinfoBaseURL = "https://ipinfo.io"

// IPInfoConfig configures the ipinfo.io resolver.
type IPInfoConfig struct {
	Token   string
	BaseURL string
	Client  *http.Client
	// RequestsPerSecond and Burst bound outbound lookups. Zero means 10/s
	// with a burst of 20.
	RequestsPerSecond float64
	Burst             int
}

// IPInfo resolves addresses with the ipinfo.io JSON API.
type IPInfo struct {
	cfg     IPInfoConfig
	base    *url.URL
	limiter *rate.Limiter
}

var _ goFactor.GeoResolver = (*IPInfo)(nil)

type ipinfoResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Loc     string `json:"loc"`
	Bogon   bool   `json:"bogon"`
}

// NewIPInfo returns an IPInfo resolver. An empty token uses the
// unauthenticated quota.
func NewIPInfo(cfg IPInfoConfig) (*IPInfo, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ipinfoBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("geo: base url: %w", err)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}

	return &IPInfo{
		cfg:     cfg,
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

func (r *IPInfo) Resolve(ctx context.Context, raw string) (goFactor.Location, error) {
	addr, err := parsePublic(raw)
	if err != nil {
		return goFactor.Location{}, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return goFactor.Location{}, fmt.Errorf("geo: rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base.JoinPath(addr.String(), "json").String(), nil)
	if err != nil {
		return goFactor.Location{}, err
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return goFactor.Location{}, fmt.Errorf("geo: ipinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return goFactor.Location{}, fmt.Errorf("geo: ipinfo status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return goFactor.Location{}, fmt.Errorf("geo: ipinfo decode: %w", err)
	}
	if body.Bogon {
		return goFactor.Location{}, ErrUnresolvable
	}

	key, ok := locationKey(body.Loc)
	if !ok {
		return goFactor.Location{}, fmt.Errorf("%w: no coordinates for %s", ErrUnresolvable, addr)
	}
	return goFactor.Location{
		City:      body.City,
		Region:    body.Region,
		Country:   body.Country,
		CoarseKey: key,
	}, nil
}
