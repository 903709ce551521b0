package events

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/stravad/types/activity"
)

// StoredActivityFeed is emitted for every activity that is successfully upserted,
// from the webhook and backfill paths alike.
var StoredActivityFeed = event.FeedOf[activity.Record]{}
