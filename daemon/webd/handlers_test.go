package webd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/rotblauer/stravad/api"
	"github.com/rotblauer/stravad/catdb/store"
	"github.com/rotblauer/stravad/common"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
	"github.com/rotblauer/stravad/secrets"
	"github.com/rotblauer/stravad/strava"
	"github.com/rotblauer/stravad/testing/testdata"
	"github.com/rotblauer/stravad/types/activity"
	"github.com/rotblauer/stravad/types/polyline"
	"github.com/tidwall/gjson"
)

type fakeSource struct {
	activities map[conceptual.ActivityID]string
}

func (f *fakeSource) GetActivity(ctx context.Context, token string, id conceptual.ActivityID) (activity.Raw, error) {
	body, ok := f.activities[id]
	if !ok {
		return activity.Raw{}, &strava.UpstreamAPIError{Op: "test", StatusCode: http.StatusNotFound}
	}
	raw := activity.Raw{}
	err := json.Unmarshal([]byte(body), &raw)
	return raw, err
}

func (f *fakeSource) ListAthleteActivities(ctx context.Context, token string, page, perPage int) ([]activity.Raw, error) {
	return []activity.Raw{}, nil
}

type fakeCredentials struct {
	err error
}

func (f *fakeCredentials) AccessToken(ctx context.Context, athleteID conceptual.AthleteID) (string, error) {
	return "a0", f.err
}

func (f *fakeCredentials) Refresh(ctx context.Context, athleteID conceptual.AthleteID) (string, error) {
	return "", f.err
}

var testPolyline = polyline.Encode(orb.LineString{{-114.0, 46.8}, {-114.0, 46.801}, {-114.001, 46.802}}, polyline.DefaultPrecision)

type testDaemon struct {
	*WebDaemon
	ts    *httptest.Server
	store store.Store
}

func newTestDaemon(t *testing.T, config *params.WebDaemonConfig, creds api.Credentials) *testDaemon {
	t.Helper()
	s, err := store.OpenBolt(filepath.Join(t.TempDir(), params.ActivitiesDBName))
	if err != nil {
		t.Fatal(err)
	}
	source := &fakeSource{activities: map[conceptual.ActivityID]string{
		1234: testdata.RawActivityJSON(1234, 42, "Ride", testPolyline),
	}}
	if creds == nil {
		creds = &fakeCredentials{}
	}
	appConfig := params.DefaultConfig()
	appConfig.InfluxDB = &params.InfluxDBConfig{}
	ingester := api.NewIngester(source, creds, s, appConfig)

	d := NewWebDaemon(config, appConfig.Export, ingester, s)
	server := httptest.NewServer(d.NewRouter())
	t.Cleanup(func() {
		server.Close()
		_ = d.Stop(context.Background())
		_ = s.Close()
	})
	return &testDaemon{WebDaemon: d, ts: server, store: s}
}

func (d *testDaemon) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Get(d.ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, body
}

func (d *testDaemon) postWebhook(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Post(d.ts.URL+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, b
}

const createEvent = `{"object_type":"activity","object_id":1234,"aspect_type":"create","owner_id":42,"subscription_id":1,"event_time":1700000000}`

func TestPing(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)
	res, body := d.get(t, "/ping")
	if res.StatusCode != http.StatusOK || string(body) != "pong" {
		t.Errorf("have %d %q", res.StatusCode, body)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestWebhookChallenge(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)
	res, body := d.get(t, "/webhook?hub.mode=subscribe&hub.challenge=abc123")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("have status %d", res.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"hub.challenge":"abc123"}` {
		t.Errorf("have body %s", body)
	}

	res, _ = d.get(t, "/webhook?hub.mode=subscribe")
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("missing challenge: have status %d", res.StatusCode)
	}
}

func TestWebhookChallenge_VerifyToken(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	config := params.DefaultTestWebDaemonConfig()
	config.WebhookVerifyToken = "STRAVA"
	d := newTestDaemon(t, config, nil)

	res, _ := d.get(t, "/webhook?hub.challenge=abc123&hub.verify_token=nope")
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("have status %d want 403", res.StatusCode)
	}
	res, body := d.get(t, "/webhook?hub.challenge=abc123&hub.verify_token=STRAVA")
	if res.StatusCode != http.StatusOK || gjson.GetBytes(body, `hub\.challenge`).String() != "abc123" {
		t.Errorf("have %d %s", res.StatusCode, body)
	}
}

func TestWebhookEvent(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)

	res, body := d.postWebhook(t, createEvent)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("have status %d: %s", res.StatusCode, body)
	}
	if gjson.GetBytes(body, "id").Int() != 1234 || gjson.GetBytes(body, "name").String() != "Morning Ride" {
		t.Errorf("have body %s", body)
	}
	if gjson.GetBytes(body, "polyline").String() == "" {
		t.Errorf("missing polyline: %s", body)
	}

	recs, err := d.store.GetByAthlete(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != 1234 {
		t.Errorf("have stored %+v", recs)
	}

	// Strava retries the same delivery.
	res, body = d.postWebhook(t, createEvent)
	if res.StatusCode != http.StatusOK || gjson.GetBytes(body, "status").String() != "duplicate" {
		t.Errorf("redelivery: have %d %s", res.StatusCode, body)
	}
}

func TestWebhookEvent_Responses(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	cases := []struct {
		name   string
		body   string
		creds  api.Credentials
		status int
		want   string
	}{
		{"not json", `{"object_type":`, nil, http.StatusBadRequest, ""},
		{"missing owner", `{"object_type":"activity","object_id":1,"aspect_type":"create"}`, nil, http.StatusBadRequest, ""},
		{"athlete event", `{"object_type":"athlete","object_id":42,"aspect_type":"update","owner_id":42}`, nil, http.StatusOK, "Error"},
		{"delete", `{"object_type":"activity","object_id":1234,"aspect_type":"delete","owner_id":42}`, nil, http.StatusOK, "Error"},
		{"unknown activity", `{"object_type":"activity","object_id":9,"aspect_type":"create","owner_id":42}`, nil, http.StatusBadGateway, ""},
		{"no credentials", createEvent, &fakeCredentials{err: &secrets.CredentialError{Op: "access", Err: errors.New("gone")}}, http.StatusInternalServerError, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := newTestDaemon(t, nil, c.creds)
			res, body := d.postWebhook(t, c.body)
			if res.StatusCode != c.status {
				t.Fatalf("have status %d want %d: %s", res.StatusCode, c.status, body)
			}
			if c.want != "" && string(body) != c.want {
				t.Errorf("have body %q want %q", body, c.want)
			}
			all, err := d.store.GetAll(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 0 {
				t.Errorf("rejected event stored %d records", len(all))
			}
		})
	}
}

func TestStatus(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	config := params.DefaultTestWebDaemonConfig()
	config.BackfillToken = "secret"
	d := newTestDaemon(t, config, nil)
	res, body := d.get(t, "/status")
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("have %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if gjson.GetBytes(body, "backfill_running").Bool() {
		t.Error("backfill should not be running")
	}
	if strings.Contains(string(body), "secret") {
		t.Errorf("status leaks token: %s", body)
	}
}

func TestBackfill_RequiresToken(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	config := params.DefaultTestWebDaemonConfig()
	config.BackfillToken = "secret"
	d := newTestDaemon(t, config, nil)

	res, err := http.Post(d.ts.URL+"/backfill?athlete=42", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("have status %d want 403", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, d.ts.URL+"/backfill?athlete=42", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("have status %d want 202", res.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.lastBackfill.Load() == nil {
		if time.Now().After(deadline) {
			t.Fatal("backfill did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if r := d.lastBackfill.Load(); r.AthleteID != 42 || r.Error != "" {
		t.Errorf("have report %+v", r)
	}
}

func TestExport(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)
	if res, body := d.postWebhook(t, createEvent); res.StatusCode != http.StatusOK {
		t.Fatalf("seed: %d %s", res.StatusCode, body)
	}

	res, body := d.get(t, "/export.json?athlete=42")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("json: have %d %s", res.StatusCode, body)
	}
	if gjson.GetBytes(body, "1234.name").String() != "Morning Ride" {
		t.Errorf("json: have %s", body)
	}

	res, body = d.get(t, "/export.geojson?athlete=42&columns=name,type")
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/geo+json" {
		t.Fatalf("geojson: have %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if n := gjson.GetBytes(body, "features.#").Int(); n != 1 {
		t.Fatalf("geojson: have %d features", n)
	}
	if gjson.GetBytes(body, "features.0.properties.distance").Exists() {
		t.Errorf("geojson: unrequested column: %s", body)
	}

	res, body = d.get(t, "/export.shp.zip?athlete=42")
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("shapefile: have %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(string(body), "PK") {
		t.Error("shapefile: not a zip")
	}

	res, body = d.get(t, "/export.json?athlete=7")
	if res.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "{}" {
		t.Errorf("other athlete: have %d %s", res.StatusCode, body)
	}
}

func TestExport_BadRequest(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)
	for _, q := range []string{
		"/export?athlete=cat",
		"/export?tolerance=-1",
		"/export.geojson?columns=name,nope",
		"/export?dates=julian",
	} {
		res, body := d.get(t, q)
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: have %d %s", q, res.StatusCode, body)
		}
	}
	for _, q := range []string{
		"/export.geojson?columns=name,geometry",
		"/export.json?columns=name,polyline",
	} {
		res, body := d.get(t, q)
		if res.StatusCode != http.StatusOK {
			t.Errorf("%s: have %d %s", q, res.StatusCode, body)
		}
	}
}

func TestSocketBroadcastsStored(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	d := newTestDaemon(t, nil, nil)

	wsURL := "ws" + strings.TrimPrefix(d.ts.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for d.melodyInstance.Len() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if res, body := d.postWebhook(t, createEvent); res.StatusCode != http.StatusOK {
		t.Fatalf("have %d %s", res.StatusCode, body)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(msg, "action").String() != "stored" {
		t.Errorf("have message %s", msg)
	}
	if gjson.GetBytes(msg, "activities.0.id").Int() != 1234 {
		t.Errorf("have message %s", msg)
	}
}
