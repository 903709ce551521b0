package strava

const (
	WebhookObjectTypeActivity = "activity"
	WebhookObjectTypeAthlete  = "athlete"

	WebhookAspectTypeCreate = "create"
	WebhookAspectTypeUpdate = "update"
	WebhookAspectTypeDelete = "delete"
)

// WebhookEvent is the body Strava POSTs to a push subscription callback.
// https://developers.strava.com/docs/webhooks/
type WebhookEvent struct {
	ObjectType     string         `json:"object_type"`
	ObjectID       int64          `json:"object_id"`
	AspectType     string         `json:"aspect_type"`
	OwnerID        int64          `json:"owner_id"`
	SubscriptionID int64          `json:"subscription_id"`
	EventTime      int64          `json:"event_time"`
	Updates        map[string]any `json:"updates,omitempty"`
}

// IsActivityUpsert is true for activity create and update events.
// Every other event is acknowledged and ignored.
func (e WebhookEvent) IsActivityUpsert() bool {
	return e.ObjectType == WebhookObjectTypeActivity &&
		(e.AspectType == WebhookAspectTypeCreate || e.AspectType == WebhookAspectTypeUpdate)
}
