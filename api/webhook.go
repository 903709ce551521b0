package api

import (
	"encoding/json"

	"github.com/rotblauer/stravad/strava"
	"github.com/tidwall/gjson"
)

// ParseWebhookEvent validates and decodes a webhook POST body.
// The required fields are object_type, aspect_type, object_id and owner_id.
func ParseWebhookEvent(body []byte) (strava.WebhookEvent, error) {
	if !gjson.ValidBytes(body) {
		return strava.WebhookEvent{}, &ValidationError{Reason: "body is not valid JSON"}
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return strava.WebhookEvent{}, &ValidationError{Reason: "body is not a JSON object"}
	}
	for _, field := range []string{"object_type", "aspect_type"} {
		v := res.Get(field)
		if !v.Exists() || v.Type != gjson.String || v.String() == "" {
			return strava.WebhookEvent{}, &ValidationError{Field: field, Reason: "required string"}
		}
	}
	for _, field := range []string{"object_id", "owner_id"} {
		v := res.Get(field)
		if !v.Exists() || v.Type != gjson.Number || v.Int() <= 0 || v.Float() != float64(v.Int()) {
			return strava.WebhookEvent{}, &ValidationError{Field: field, Reason: "required positive integer"}
		}
	}
	ev := strava.WebhookEvent{}
	if err := json.Unmarshal(body, &ev); err != nil {
		return strava.WebhookEvent{}, &ValidationError{Reason: err.Error()}
	}
	return ev, nil
}
