package cache

import (
	"encoding/json"
	"time"
)

// Entry is one cached value. Data holds the JSON encoding of the value.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	TTLDays   int             `json:"ttl_days"`
	Hits      int             `json:"hits"`
}

// IsExpired reports whether now is past CreatedAt + TTLDays.
func (e Entry) IsExpired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLDays) * 24 * time.Hour))
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Source tags where GetOrComputeWithAPIFirst found its value.
type Source string

const (
	SourceAPI          Source = "api"
	SourceCache        Source = "cache"
	SourceCacheExpired Source = "cache_expired"
)

type Stats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
	Hits    int `json:"hits"`
}
