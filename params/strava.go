package params

import "time"

type StravaConfig struct {
	// BaseURL is the Strava v3 API root, without trailing slash.
	BaseURL string
	// TokenURL is the OAuth token endpoint used for refresh.
	TokenURL string
	// Timeout bounds each upstream HTTP call.
	Timeout time.Duration

	// RateLimit is the sustained requests-per-second allowed upstream.
	// Strava allows 100 requests per 15 minutes by default, about 0.11/s,
	// with bursts.
	RateLimit float64
	RateBurst int

	// BreakerFailures consecutive failures open the circuit breaker
	// for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// PerPage and MaxPages bound a backfill run.
	PerPage  int
	MaxPages int
}

func DefaultStravaConfig() *StravaConfig {
	return &StravaConfig{
		BaseURL:         "https://www.strava.com/api/v3",
		TokenURL:        "https://www.strava.com/oauth/token",
		Timeout:         30 * time.Second,
		RateLimit:       0.11,
		RateBurst:       20,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
		PerPage:         30,
		MaxPages:        150,
	}
}
