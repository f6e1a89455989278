package graph

import "time"

// Page is the identity on whose behalf posts and replies are made.
// Resolved once per run and immutable for the run's duration.
type Page struct {
	ID    string
	Token string
	Name  string
}

// Post is a read-only reference to a page post.
type Post struct {
	ID          string
	Message     string
	CreatedTime time.Time
}

// Comment is the unit of work for the responder. Comments authored by the
// page itself never appear here; the client filters them on listing.
type Comment struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Message     string
	CreatedTime time.Time
}
