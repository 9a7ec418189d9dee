package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Accepted event timestamp formats in imported files.
var csvTimeLayouts = []string{timeLayout, time.RFC3339, "2006-01-02T15:04:05"}

// ReadFeedActionsCSV parses a feed_actions export with a header row naming
// user_id, post_id, action, time, os and source in any order.
func ReadFeedActionsCSV(r io.Reader) ([]FeedAction, error) {
	var out []FeedAction
	err := readCSV(r, []string{"user_id", "post_id", "action", "time", "os", "source"}, func(rec record) error {
		a := FeedAction{Action: rec.field("action"), OS: rec.field("os"), Source: rec.field("source")}
		var err error
		if a.UserID, err = rec.intField("user_id"); err != nil {
			return err
		}
		if a.PostID, err = rec.intField("post_id"); err != nil {
			return err
		}
		if a.Time, err = rec.timeField("time"); err != nil {
			return err
		}
		if a.Action != "view" && a.Action != "like" {
			return fmt.Errorf("action: unknown value %q", a.Action)
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// ReadMessageActionsCSV parses a message_actions export with a header row
// naming user_id, receiver_id, time, os and source in any order.
func ReadMessageActionsCSV(r io.Reader) ([]MessageAction, error) {
	var out []MessageAction
	err := readCSV(r, []string{"user_id", "receiver_id", "time", "os", "source"}, func(rec record) error {
		a := MessageAction{OS: rec.field("os"), Source: rec.field("source")}
		var err error
		if a.UserID, err = rec.intField("user_id"); err != nil {
			return err
		}
		if a.ReceiverID, err = rec.intField("receiver_id"); err != nil {
			return err
		}
		if a.Time, err = rec.timeField("time"); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

type record struct {
	cols   map[string]int
	fields []string
}

func (r record) field(name string) string {
	return strings.TrimSpace(r.fields[r.cols[name]])
}

func (r record) intField(name string) (int64, error) {
	v, err := strconv.ParseInt(r.field(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (r record) timeField(name string) (time.Time, error) {
	s := r.field(name)
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unrecognised timestamp %q", name, s)
}

func readCSV(r io.Reader, required []string, fn func(record) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty file")
		}
		return fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}

	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(record{cols: cols, fields: fields}); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}
