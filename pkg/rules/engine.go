package rules

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Engine runs a fixed set of rules.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine running rules, or every rule when none are
// given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = All()
	}
	return &Engine{rules: rules}
}

// Rules returns the ids of the rules the engine runs.
func (e *Engine) Rules() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Run executes every rule concurrently and returns their findings about
// analysis targets in report order. The first rule error cancels the run.
func (e *Engine) Run(ctx context.Context, rc Context) ([]Finding, error) {
	results := make([][]Finding, len(e.rules))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, r := range e.rules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			findings, err := r.Check(rc)
			if err != nil {
				return fmt.Errorf("rule %s: %w", r.ID(), err)
			}
			slog.Debug("rule finished", "rule", r.ID(), "findings", len(findings))
			results[idx] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := slices.Concat(results...)
	all = slices.DeleteFunc(all, func(f Finding) bool {
		return !rc.IsAnalysisTarget(f.Class)
	})
	return SortFindings(all), nil
}
