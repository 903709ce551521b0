// Package secrets stores Strava OAuth credentials as versioned secrets
// and rotates them.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
)

const (
	ClientIDName     = "strava_client_id"
	ClientSecretName = "strava_client_secret"
)

func AccessTokenName(athleteID conceptual.AthleteID) string {
	return "strava_access_token_" + athleteID.String()
}

func RefreshTokenName(athleteID conceptual.AthleteID) string {
	return "strava_refresh_token_" + athleteID.String()
}

// ErrNotFound is returned by Access when a secret has no enabled version.
var ErrNotFound = errors.New("secret not found")

// Store is a versioned secret store.
// Version identifiers are opaque to callers.
type Store interface {
	// Access returns the value of the latest enabled version of name.
	Access(ctx context.Context, name string) (string, error)
	// Add creates a new latest version of name holding value.
	Add(ctx context.Context, name, value string) (version string, err error)
	// Versions lists the enabled versions of name.
	Versions(ctx context.Context, name string) ([]string, error)
	// Destroy irreversibly disables one version and drops its value.
	Destroy(ctx context.Context, name, version string) error
	Close() error
}

// Open opens the secret store backend named by config.
func Open(ctx context.Context, config *params.SecretsConfig) (Store, error) {
	switch config.Backend {
	case params.BackendBolt:
		return OpenBolt(config.Path)
	case params.BackendGSM:
		return OpenGSM(ctx, config)
	}
	return nil, fmt.Errorf("unknown secrets backend %q", config.Backend)
}

// CredentialError is returned when credentials could not be read or rotated.
// When it is returned from a rotation, no prior version was destroyed.
type CredentialError struct {
	Op   string
	Name string
	Err  error
}

func (e *CredentialError) Error() string {
	s := "credentials: " + e.Op
	if e.Name != "" {
		s += " " + e.Name
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
