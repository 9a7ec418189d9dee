// Package source extracts the raw per-dimension tables for a report window.
package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

// Source runs the three read-only analytical queries behind a report.
type Source interface {
	FeedActions(ctx context.Context, w dataset.Window) ([]dataset.FeedRow, error)
	MessageActions(ctx context.Context, w dataset.Window) ([]dataset.MessageRow, error)
	ActiveUsers(ctx context.Context, w dataset.Window) ([]dataset.ActiveRow, error)
}

// Tables is the raw extraction result for one window.
type Tables struct {
	Window   dataset.Window
	Feed     []dataset.FeedRow
	Messages []dataset.MessageRow
	Active   []dataset.ActiveRow
	Elapsed  time.Duration
}

// Extract runs the three queries concurrently. The first error cancels the
// others and is returned; no partial tables are returned.
func Extract(ctx context.Context, src Source, w dataset.Window) (*Tables, error) {
	start := time.Now()
	t := &Tables{Window: w}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := src.FeedActions(gCtx, w)
		if err != nil {
			return fmt.Errorf("feed actions: %w", err)
		}
		t.Feed = rows
		return nil
	})
	g.Go(func() error {
		rows, err := src.MessageActions(gCtx, w)
		if err != nil {
			return fmt.Errorf("message actions: %w", err)
		}
		t.Messages = rows
		return nil
	})
	g.Go(func() error {
		rows, err := src.ActiveUsers(gCtx, w)
		if err != nil {
			return fmt.Errorf("active users: %w", err)
		}
		t.Active = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.Elapsed = time.Since(start)
	return t, nil
}
