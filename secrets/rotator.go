package secrets

import (
	"context"
	"log/slog"

	"github.com/rotblauer/stravad/catdb/cache"
	"github.com/rotblauer/stravad/conceptual"
	"golang.org/x/oauth2"
)

// TokenExchanger trades a refresh token for a new token pair.
// *strava.Client implements it.
type TokenExchanger interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*oauth2.Token, error)
}

// Rotator hands out access tokens and rotates the OAuth token pair.
type Rotator struct {
	Store    Store
	Exchange TokenExchanger
	logger   *slog.Logger
}

func NewRotator(store Store, exchange TokenExchanger) *Rotator {
	return &Rotator{
		Store:    store,
		Exchange: exchange,
		logger:   slog.With("d", "secrets"),
	}
}

// AccessToken returns the athlete's current access token,
// from the cache or else the store.
func (r *Rotator) AccessToken(ctx context.Context, athleteID conceptual.AthleteID) (string, error) {
	if tok, ok := cache.GetAccessToken(athleteID); ok {
		return tok, nil
	}
	name := AccessTokenName(athleteID)
	tok, err := r.Store.Access(ctx, name)
	if err != nil {
		return "", &CredentialError{Op: "access", Name: name, Err: err}
	}
	cache.SetAccessToken(athleteID, tok)
	return tok, nil
}

// Refresh exchanges the athlete's refresh token for a new pair,
// stores both new versions, and only then destroys the prior versions.
// On any failure before both new versions are stored, nothing is destroyed
// and a *CredentialError is returned.
// A failure to destroy a prior version is logged; the new pair is current.
func (r *Rotator) Refresh(ctx context.Context, athleteID conceptual.AthleteID) (string, error) {
	clientID, err := r.Store.Access(ctx, ClientIDName)
	if err != nil {
		return "", &CredentialError{Op: "access", Name: ClientIDName, Err: err}
	}
	clientSecret, err := r.Store.Access(ctx, ClientSecretName)
	if err != nil {
		return "", &CredentialError{Op: "access", Name: ClientSecretName, Err: err}
	}
	accessName, refreshName := AccessTokenName(athleteID), RefreshTokenName(athleteID)
	oldRefresh, err := r.Store.Access(ctx, refreshName)
	if err != nil {
		return "", &CredentialError{Op: "access", Name: refreshName, Err: err}
	}

	// Versions present before the add are the ones to destroy.
	oldAccessVersions, err := r.Store.Versions(ctx, accessName)
	if err != nil {
		return "", &CredentialError{Op: "list", Name: accessName, Err: err}
	}
	oldRefreshVersions, err := r.Store.Versions(ctx, refreshName)
	if err != nil {
		return "", &CredentialError{Op: "list", Name: refreshName, Err: err}
	}

	tok, err := r.Exchange.RefreshToken(ctx, clientID, clientSecret, oldRefresh)
	if err != nil {
		return "", &CredentialError{Op: "exchange", Name: refreshName, Err: err}
	}

	if _, err := r.Store.Add(ctx, refreshName, tok.RefreshToken); err != nil {
		return "", &CredentialError{Op: "add", Name: refreshName, Err: err}
	}
	if _, err := r.Store.Add(ctx, accessName, tok.AccessToken); err != nil {
		return "", &CredentialError{Op: "add", Name: accessName, Err: err}
	}
	cache.SetAccessToken(athleteID, tok.AccessToken)

	r.destroy(ctx, refreshName, oldRefreshVersions)
	r.destroy(ctx, accessName, oldAccessVersions)

	r.logger.Info("Rotated credentials", "athlete", athleteID,
		"destroyed.refresh", len(oldRefreshVersions), "destroyed.access", len(oldAccessVersions))
	return tok.AccessToken, nil
}

func (r *Rotator) destroy(ctx context.Context, name string, versions []string) {
	for _, v := range versions {
		if err := r.Store.Destroy(ctx, name, v); err != nil {
			r.logger.Warn("Failed to destroy prior secret version", "name", name, "version", v, "error", err)
		}
	}
}
