package params

import "time"

var (
	// CacheAccessTokenTTL is how long a refreshed access token is reused.
	// Strava access tokens expire after six hours.
	CacheAccessTokenTTL = 5 * time.Hour

	// WebhookDedupeSize is the number of recent webhook deliveries remembered.
	WebhookDedupeSize = 10_000
)
