package internal

import (
	"context"
	"net/http"
)

// HTTPDoer is the transport the client sends requests through. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimiter paces outgoing API requests
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetRate(requestsPerSecond float64)
}

// MessageSource is the subset of the client the sync manager depends on
type MessageSource interface {
	GetGroups(ctx context.Context, includeInactive bool) ([]Group, error)
	GetMembers(ctx context.Context, groupID int64) ([]Member, error)
	GetMessages(ctx context.Context, groupID int64, sinceID int64) ([]Message, error)
}

// MediaFetcher downloads a single media file
type MediaFetcher interface {
	DownloadFile(ctx context.Context, url, filepath, timestamp string) (bool, error)
}
