package cache

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/jellydator/ttlcache/v3"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rotblauer/stravad/conceptual"
	"github.com/rotblauer/stravad/params"
)

// AccessTokenTTLCache holds the most recently read or refreshed
// Strava access token per athlete.
var AccessTokenTTLCache = ttlcache.New[string, string](
	ttlcache.WithTTL[string, string](params.CacheAccessTokenTTL),
	ttlcache.WithDisableTouchOnHit[string, string]())

func SetAccessToken(athleteID conceptual.AthleteID, token string) {
	AccessTokenTTLCache.Set(athleteID.String(), token, ttlcache.DefaultTTL)
}

func GetAccessToken(athleteID conceptual.AthleteID) (string, bool) {
	item := AccessTokenTTLCache.Get(athleteID.String())
	if item == nil || item.IsExpired() {
		return "", false
	}
	return item.Value(), true
}

func DeleteAccessToken(athleteID conceptual.AthleteID) {
	AccessTokenTTLCache.Delete(athleteID.String())
}

// NewDedupePassLRUFunc returns a pass function that returns true the first time
// it sees a value (by structure hash) among the last size values, and false
// for repeats. forget removes a value, so that it passes again.
// Both are safe for concurrent use.
func NewDedupePassLRUFunc[T any](size int) (pass func(T) bool, forget func(T)) {
	var mu sync.Mutex
	var dedupeCache = lru.New(size)
	key := func(v T) (string, bool) {
		hash, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%d", hash), true
	}
	pass = func(v T) bool {
		k, ok := key(v)
		if !ok {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		if _, seen := dedupeCache.Get(k); seen {
			return false
		}
		dedupeCache.Add(k, true)
		return true
	}
	forget = func(v T) {
		k, ok := key(v)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		dedupeCache.Remove(k)
	}
	return pass, forget
}
