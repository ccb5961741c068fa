package api

import (
	"time"

	"dirwatch/internal/logging"
)

type watchRequest struct {
	Path string `json:"path"`
}

type statusResponse struct {
	WatchedCount    int       `json:"watched_count"`
	Watched         []string  `json:"watched"`
	Roots           []string  `json:"roots"`
	SubscriberCount int       `json:"subscriber_count"`
	EventsPublished int64     `json:"events_published"`
	EventsDropped   int64     `json:"events_dropped"`
	ServerTime      time.Time `json:"server_time"`
	Version         string    `json:"version"`
	Major           int       `json:"major"`
	Minor           int       `json:"minor"`
	Patch           int       `json:"patch"`
	Built           string    `json:"built"`
	GitCommit       string    `json:"git_commit,omitempty"`
}

type logQuery struct {
	Limit int
	Level logging.Level
	Since *time.Time
}

type eventPayload struct {
	Type      string    `json:"type"`
	Parent    string    `json:"parent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}
