package database

import "time"

// FeedAction is a single view or like of a post.
type FeedAction struct {
	UserID int64
	PostID int64
	Action string // "view" or "like"
	Time   time.Time
	OS     string
	Source string
}

// MessageAction is a single sent message.
type MessageAction struct {
	UserID     int64
	ReceiverID int64
	Time       time.Time
	OS         string
	Source     string
}

// Stats contains aggregate warehouse statistics.
type Stats struct {
	FeedActions    int
	MessageActions int
	FirstDay       string
	LastDay        string
}
