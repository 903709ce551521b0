package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/types/activity"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client calls the Strava v3 API. Requests are rate limited and
// guarded by a circuit breaker shared by every caller of the Client.
type Client struct {
	Config  *params.StravaConfig
	HTTP    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

func NewClient(config *params.StravaConfig) *Client {
	if config == nil {
		config = params.DefaultStravaConfig()
	}
	c := &Client{
		Config:  config,
		HTTP:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		logger:  slog.With("d", "strava"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "strava",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var ue *UpstreamAPIError
			if errors.As(err, &ue) {
				return !ue.retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// GetActivity fetches one activity, including all efforts, as the owner.
func (c *Client) GetActivity(ctx context.Context, accessToken string, id conceptual.ActivityID) (activity.Raw, error) {
	op := "get activity " + id.String()
	body, err := c.get(ctx, op, accessToken, "/activities/"+id.String(), url.Values{
		"include_all_efforts": []string{"true"},
	})
	if err != nil {
		return activity.Raw{}, err
	}
	raw := activity.Raw{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return activity.Raw{}, &UpstreamAPIError{Op: op, Message: "undecodable body", Err: err}
	}
	return raw, nil
}

// ListAthleteActivities fetches one page (1-based) of the authenticated
// athlete's activities, newest first.
func (c *Client) ListAthleteActivities(ctx context.Context, accessToken string, page, perPage int) ([]activity.Raw, error) {
	op := "list activities page " + strconv.Itoa(page)
	body, err := c.get(ctx, op, accessToken, "/athlete/activities", url.Values{
		"page":     []string{strconv.Itoa(page)},
		"per_page": []string{strconv.Itoa(perPage)},
	})
	if err != nil {
		return nil, err
	}
	raws := []activity.Raw{}
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &UpstreamAPIError{Op: op, Message: "undecodable body", Err: err}
	}
	return raws, nil
}

func (c *Client) get(ctx context.Context, op, accessToken, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamAPIError{Op: op, Err: err}
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, op, accessToken, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &UpstreamAPIError{Op: op, Message: "circuit open", Err: err}
	}
	return body, err
}

func (c *Client) do(ctx context.Context, op, accessToken, path string, query url.Values) ([]byte, error) {
	u := c.Config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UpstreamAPIError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Strava request", "op", op, "url", u)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &UpstreamAPIError{Op: op, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &UpstreamAPIError{Op: op, StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &UpstreamAPIError{
			Op:         op,
			StatusCode: res.StatusCode,
			Message:    gjson.GetBytes(body, "message").String(),
		}
	}
	return body, nil
}

// RefreshToken exchanges a refresh token for a new access and refresh token pair.
// https://developers.strava.com/docs/authentication/#refreshingexpiredaccesstokens
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.Config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTP)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		ue := &UpstreamAPIError{Op: "refresh token", Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			ue.StatusCode = re.Response.StatusCode
			ue.Message = gjson.GetBytes(re.Body, "message").String()
		}
		return nil, ue
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, &UpstreamAPIError{Op: "refresh token", Message: fmt.Sprintf("incomplete token response (access=%t refresh=%t)",
			tok.AccessToken != "", tok.RefreshToken != "")}
	}
	return tok, nil
}
