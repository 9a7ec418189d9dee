package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/dailyreport/internal/aggregate"
	"github.com/TobiSchelling/dailyreport/internal/chart"
	"github.com/TobiSchelling/dailyreport/internal/dataset"
	"github.com/TobiSchelling/dailyreport/internal/report"
	"github.com/TobiSchelling/dailyreport/internal/source"
)

// Step names, in run order.
const (
	StepExtract   = "Extract"
	StepMerge     = "Merge"
	StepAggregate = "Aggregate"
	StepReport    = "Report"
	StepChart     = "Chart"
	StepDispatch  = "Dispatch"
)

const totalSteps = 6

// Dispatcher delivers a finished report.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, img *chart.Image) error
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name     string
	Summary  string
	Err      error
	Duration time.Duration
}

// Output is everything computed for one report window.
type Output struct {
	Tables      *source.Tables
	Dimensioned []dataset.DimensionedRow
	Global      []dataset.GlobalRow
	Delta       *report.Delta
	Text        string
	Markdown    string
	Chart       *chart.Image
}

// Result holds the results of a full pipeline run.
type Result struct {
	Window     dataset.Window
	Steps      []StepResult
	Output     *Output
	Dispatched bool
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Options tune a pipeline.
type Options struct {
	WindowDays int
	Join       aggregate.JoinMode
}

// Pipeline orchestrates the 6-step daily report.
type Pipeline struct {
	src     source.Source
	disp    Dispatcher
	opts    Options
	log     *zap.SugaredLogger
	metrics *Metrics
}

// New creates a new pipeline. disp may be nil for pipelines that only Build.
// metrics may be nil.
func New(src source.Source, disp Dispatcher, opts Options, log *zap.SugaredLogger, metrics *Metrics) *Pipeline {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.Join == "" {
		opts.Join = aggregate.JoinInner
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{src: src, disp: disp, opts: opts, log: log, metrics: metrics}
}

// Window returns the report window for a run on today.
func (p *Pipeline) Window(today time.Time) dataset.Window {
	return dataset.NewWindow(today, p.opts.WindowDays)
}

// Build runs steps 1-5 and stops at the first failure. Nothing is sent.
func (p *Pipeline) Build(ctx context.Context, today time.Time) *Result {
	r := &Result{Window: p.Window(today), Output: &Output{}}
	out := r.Output

	steps := []func(context.Context, dataset.Window, *Output) StepResult{
		p.runExtract,
		p.runMerge,
		p.runAggregate,
		p.runReport,
		p.runChart,
	}
	for i, fn := range steps {
		if err := ctx.Err(); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: stepName(i), Err: err})
			return r
		}
		start := time.Now()
		step := fn(ctx, r.Window, out)
		step.Duration = time.Since(start)
		p.metrics.observeStep(step)
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			p.log.Errorf("%s failed: %v", step.Name, step.Err)
			return r
		}
		p.log.Infof("%s: %s", step.Name, step.Summary)
	}
	p.metrics.setKPIs(out.Delta)
	return r
}

// Run builds the report and dispatches it. Dispatch happens only when every
// earlier step succeeded and ctx is still live.
func (p *Pipeline) Run(ctx context.Context, today time.Time) *Result {
	r := p.Build(ctx, today)
	if r.Err() != nil {
		p.metrics.runFinished(false)
		return r
	}

	step := p.runDispatch(ctx, r.Output)
	p.metrics.observeStep(step)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		p.log.Errorf("%s failed: %v", step.Name, step.Err)
		p.metrics.runFinished(false)
		return r
	}
	p.log.Infof("%s: %s", step.Name, step.Summary)
	r.Dispatched = true
	p.metrics.runFinished(true)
	return r
}

func stepName(i int) string {
	return []string{StepExtract, StepMerge, StepAggregate, StepReport, StepChart, StepDispatch}[i]
}

func (p *Pipeline) runExtract(ctx context.Context, w dataset.Window, out *Output) StepResult {
	p.log.Infof("Step 1/%d: Extracting %s...", totalSteps, w)
	tables, err := source.Extract(ctx, p.src, w)
	if err != nil {
		return StepResult{Name: StepExtract, Err: err}
	}
	out.Tables = tables
	return StepResult{
		Name: StepExtract,
		Summary: fmt.Sprintf("%d feed rows, %d message rows, %d active-user rows in %s",
			len(tables.Feed), len(tables.Messages), len(tables.Active), tables.Elapsed.Round(time.Millisecond)),
	}
}

func (p *Pipeline) runMerge(_ context.Context, _ dataset.Window, out *Output) StepResult {
	p.log.Infof("Step 2/%d: Merging feed and message tables...", totalSteps)
	dim, stats, err := aggregate.Merge(out.Tables.Feed, out.Tables.Messages, p.opts.Join)
	if err != nil {
		return StepResult{Name: StepMerge, Err: err}
	}
	if stats.Dropped() > 0 {
		p.log.Warnf("Merge dropped %d feed and %d message groups without a counterpart",
			stats.LeftDropped, stats.RightDropped)
	}
	out.Dimensioned = dim
	return StepResult{
		Name:    StepMerge,
		Summary: fmt.Sprintf("%d dimension rows (%d dropped)", len(dim), stats.Dropped()),
	}
}

func (p *Pipeline) runAggregate(_ context.Context, _ dataset.Window, out *Output) StepResult {
	p.log.Infof("Step 3/%d: Aggregating per day...", totalSteps)
	global, stats, err := aggregate.Global(out.Dimensioned, out.Tables.Active, p.opts.Join)
	if err != nil {
		return StepResult{Name: StepAggregate, Err: err}
	}
	if stats.Dropped() > 0 {
		p.log.Warnf("Aggregate dropped %d days without active users and %d active-user days without activity",
			stats.LeftDropped, stats.RightDropped)
	}
	out.Global = global
	return StepResult{
		Name:    StepAggregate,
		Summary: fmt.Sprintf("%d days (%d dropped)", len(global), stats.Dropped()),
	}
}

func (p *Pipeline) runReport(_ context.Context, _ dataset.Window, out *Output) StepResult {
	p.log.Infof("Step 4/%d: Computing day-over-day changes...", totalSteps)
	delta, err := report.Compute(out.Global)
	if err != nil {
		return StepResult{Name: StepReport, Err: err}
	}
	out.Delta = delta
	out.Text = report.Format(delta)
	out.Markdown = report.Markdown(delta)
	return StepResult{
		Name: StepReport,
		Summary: fmt.Sprintf("Report for %s vs %s",
			delta.Date.Format(dataset.DateLayout), delta.PreviousDate.Format(dataset.DateLayout)),
	}
}

func (p *Pipeline) runChart(_ context.Context, _ dataset.Window, out *Output) StepResult {
	p.log.Infof("Step 5/%d: Rendering chart...", totalSteps)
	img, err := chart.Render(out.Dimensioned, out.Global)
	if err != nil {
		return StepResult{Name: StepChart, Err: err}
	}
	out.Chart = img
	return StepResult{
		Name:    StepChart,
		Summary: fmt.Sprintf("Rendered %s (%d bytes)", img.Name, len(img.PNG)),
	}
}

func (p *Pipeline) runDispatch(ctx context.Context, out *Output) StepResult {
	p.log.Infof("Step 6/%d: Dispatching report...", totalSteps)
	start := time.Now()
	if p.disp == nil {
		return StepResult{Name: StepDispatch, Err: errors.New("no dispatcher configured")}
	}
	if err := ctx.Err(); err != nil {
		return StepResult{Name: StepDispatch, Err: err}
	}
	if err := p.disp.Dispatch(ctx, out.Text, out.Chart); err != nil {
		return StepResult{Name: StepDispatch, Err: err, Duration: time.Since(start)}
	}
	return StepResult{
		Name:     StepDispatch,
		Summary:  fmt.Sprintf("Sent report and %s", out.Chart.Name),
		Duration: time.Since(start),
	}
}
