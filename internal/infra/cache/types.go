package cache

import "time"

// Stats contains cache statistics.
type Stats struct {
	TrackCount    int       `json:"trackCount"`
	SchemaVersion string    `json:"schemaVersion"`
	LastPurge     time.Time `json:"lastPurge"`
}
