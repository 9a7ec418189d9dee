package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/dailyreport/internal/chart"
)

// Directory writes the report as <token>.txt and <token>.png into Dir.
type Directory struct {
	Dir string
}

// Dispatch writes the text file, then the chart.
func (d *Directory) Dispatch(ctx context.Context, text string, img *chart.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	base := "report"
	if img != nil {
		base = strings.TrimSuffix(img.Name, filepath.Ext(img.Name))
	}
	if err := os.WriteFile(filepath.Join(d.Dir, base+".txt"), []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if img != nil {
		if err := os.WriteFile(filepath.Join(d.Dir, img.Name), img.PNG, 0o644); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
	}
	return nil
}

// Writer prints the report to W and only names the chart.
type Writer struct {
	W io.Writer
}

// Dispatch prints the text and a one-line chart summary.
func (w *Writer) Dispatch(ctx context.Context, text string, img *chart.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w.W, text); err != nil {
		return err
	}
	if img != nil {
		_, err := fmt.Fprintf(w.W, "\n[chart %s, %d bytes]\n", img.Name, len(img.PNG))
		return err
	}
	return nil
}
