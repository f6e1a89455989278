package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Queue post statuses.
const (
	StatusDraft     = "draft"
	StatusApproved  = "approved"
	StatusPublished = "published"
)

// QueuedPost is one entry in the publishing queue. Position fixes the
// publish order; approval does not reorder.
type QueuedPost struct {
	ID           string
	Message      string
	LinkURL      string
	Status       string
	Position     int64
	CreatedAt    time.Time
	ApprovedAt   time.Time // zero until approved
	PublishedAt  time.Time // zero until published
	RemotePostID string    // id assigned by the remote service on publish
}
