package strava

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/testing/testdata"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	config := params.DefaultStravaConfig()
	config.BaseURL = srv.URL
	config.TokenURL = srv.URL + "/oauth/token"
	config.Timeout = 5 * time.Second
	config.RateLimit = 1000
	config.BreakerFailures = 2
	return NewClient(config)
}

func TestClient_GetActivity(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/1234" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("include_all_efforts") != "true" {
			t.Errorf("include_all_efforts not set: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("have auth header %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, testdata.RawActivityJSON(1234, 42, "Ride", "_p~iF~ps|U"))
	}))
	raw, err := c.GetActivity(context.Background(), "tok", conceptual.ActivityID(1234))
	if err != nil {
		t.Fatal(err)
	}
	if raw.ID != 1234 || raw.Athlete == nil || raw.Athlete.ID != 42 {
		t.Errorf("have %+v", raw)
	}
	if raw.Map == nil || raw.Map.SummaryPolyline != "_p~iF~ps|U" {
		t.Errorf("have map %+v", raw.Map)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Authorization Error","errors":[]}`)
	}))
	_, err := c.GetActivity(context.Background(), "stale", 1)
	var ue *UpstreamAPIError
	if !errors.As(err, &ue) {
		t.Fatalf("have %T %v, want *UpstreamAPIError", err, err)
	}
	if ue.StatusCode != http.StatusUnauthorized || ue.Message != "Authorization Error" {
		t.Errorf("have %+v", ue)
	}
	if !IsUnauthorized(err) {
		t.Error("expected IsUnauthorized")
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	for i := 0; i < 4; i++ {
		_, err := c.ListAthleteActivities(context.Background(), "tok", 1, 30)
		var ue *UpstreamAPIError
		if !errors.As(err, &ue) {
			t.Fatalf("call %d: have %v", i, err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("have %d upstream hits want 2 before the breaker opened", n)
	}
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	for i := 0; i < 4; i++ {
		c.GetActivity(context.Background(), "tok", 1)
	}
	if n := hits.Load(); n != 4 {
		t.Errorf("have %d upstream hits want 4", n)
	}
}

func TestClient_ListAthleteActivities(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/athlete/activities" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("per_page") != "30" {
			t.Errorf("have query %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, "[%s,%s]", testdata.RawActivityJSON(1, 42, "Run", ""), testdata.TrainerActivityJSON)
	}))
	raws, err := c.ListAthleteActivities(context.Background(), "tok", 2, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 2 || raws[1].ID != 9999 {
		t.Errorf("have %+v", raws)
	}
}

func TestClient_RefreshToken(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "csecret" {
			t.Errorf("client credentials not sent in params: %v", r.PostForm)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r0" {
			t.Errorf("have form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","access_token":"a1","refresh_token":"r1","expires_in":21600,"expires_at":1700000000}`)
	}))
	tok, err := c.RefreshToken(context.Background(), "cid", "csecret", "r0")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "a1" || tok.RefreshToken != "r1" {
		t.Errorf("have %+v", tok)
	}
}

func TestClient_RefreshTokenRejected(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`)
	}))
	_, err := c.RefreshToken(context.Background(), "cid", "csecret", "bad")
	var ue *UpstreamAPIError
	if !errors.As(err, &ue) {
		t.Fatalf("have %T %v", err, err)
	}
	if ue.StatusCode != http.StatusBadRequest {
		t.Errorf("have status %d", ue.StatusCode)
	}
}

func TestWebhookEvent_IsActivityUpsert(t *testing.T) {
	cases := []struct {
		object, aspect string
		want           bool
	}{
		{WebhookObjectTypeActivity, WebhookAspectTypeCreate, true},
		{WebhookObjectTypeActivity, WebhookAspectTypeUpdate, true},
		{WebhookObjectTypeActivity, WebhookAspectTypeDelete, false},
		{WebhookObjectTypeAthlete, WebhookAspectTypeUpdate, false},
		{WebhookObjectTypeAthlete, WebhookAspectTypeCreate, false},
	}
	for _, c := range cases {
		e := WebhookEvent{ObjectType: c.object, AspectType: c.aspect}
		if got := e.IsActivityUpsert(); got != c.want {
			t.Errorf("%s/%s: have %v want %v", c.object, c.aspect, got, c.want)
		}
	}
}
