package dataset

import (
	"fmt"
	"time"
)

// Key is the composite primary key of the dimensioned tables.
type Key struct {
	Date     time.Time
	Platform string
	Source   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Date.Format(DateLayout), k.Platform, k.Source)
}

// Less orders keys by date, then platform, then source.
func (k Key) Less(o Key) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	if k.Platform != o.Platform {
		return k.Platform < o.Platform
	}
	return k.Source < o.Source
}

// FeedRow holds feed metrics for one (date, platform, source) group.
type FeedRow struct {
	Key
	DAU            int64
	PostsViewed    int64
	ActionsPerUser float64
	CTR            float64
}

// MessageRow holds messenger metrics for one (date, platform, source) group.
type MessageRow struct {
	Key
	MessagesSent    int64
	MessagingUsers  int64
	MessagesPerUser float64
}

// ActiveRow is the number of users with both a feed action and a sent
// message on the same date.
type ActiveRow struct {
	Date        time.Time
	ActiveUsers int64
}

// DimensionedRow is a feed row joined with its message row.
type DimensionedRow struct {
	Key
	DAU             int64
	PostsViewed     int64
	ActionsPerUser  float64
	CTR             float64
	MessagesSent    int64
	MessagingUsers  int64
	MessagesPerUser float64
}

// GlobalRow is the whole-population aggregate for one date. Count fields are
// sums over every dimension, rate fields are means of the per-dimension rates.
type GlobalRow struct {
	Date            time.Time
	DAU             int64
	PostsViewed     int64
	ActionsPerUser  float64
	CTR             float64
	MessagesSent    int64
	MessagingUsers  int64
	MessagesPerUser float64
	ActiveUsers     int64
}
