package models

import "time"

// ListItem represents a single movie entry in a user list. Items are
// immutable once added; equality and list membership are keyed by ID only.
type ListItem struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Overview     string    `json:"overview,omitempty"`
	PosterPath   string    `json:"posterPath,omitempty"`
	BackdropPath string    `json:"backdropPath,omitempty"`
	VoteAverage  float64   `json:"voteAverage,omitempty"`
	ReleaseDate  time.Time `json:"releaseDate,omitzero"`
}

// List names understood by the synchronization manager.
const (
	ListToWatch = "to_watch"
	ListWatched = "watched"
)

// KnownList reports whether name is one of the managed list names.
func KnownList(name string) bool {
	return name == ListToWatch || name == ListWatched
}

// RatingMap maps an item id (as text) to a personal rating on a 0-10 scale.
// Absence of a key means the item is unrated.
type RatingMap map[string]float64

// CommentMap maps an item id (as text) to free-form comment text, one
// comment per item, overwritten on update.
type CommentMap map[string]string
