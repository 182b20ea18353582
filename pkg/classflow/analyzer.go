package classflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/715d/classflow/pkg/rules"
	"github.com/715d/classflow/pkg/suppress"
)

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	// Enable and Disable select rules by id; an empty Enable runs every
	// rule.
	Enable  []string
	Disable []string

	// Suppress are configured suppressions applied on top of annotations.
	Suppress []suppress.Suppression
}

// Analyzer runs the selected rules over a session and applies
// suppressions.
type Analyzer struct {
	suppressions *suppress.Checker
	engine       *rules.Engine
	opts         AnalyzerOptions
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts AnalyzerOptions) (*Analyzer, error) {
	selected, err := rules.Select(rules.All(), opts.Enable, opts.Disable)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no rules enabled")
	}
	return &Analyzer{
		suppressions: suppress.NewChecker(),
		engine:       rules.NewEngine(selected...),
		opts:         opts,
	}, nil
}

// Rules returns the ids of the rules the analyzer runs.
func (a *Analyzer) Rules() []string {
	return a.engine.Rules()
}

// Analyze runs the rules over s and returns the unsuppressed findings with
// the session's diagnostics.
func (a *Analyzer) Analyze(ctx context.Context, s *Session) (*Report, error) {
	// Step 1: Load suppressions from annotations and configuration.
	a.suppressions.Clear()
	a.suppressions.LoadAnnotations(s.Targets())
	if err := a.suppressions.Load(a.opts.Suppress); err != nil {
		return nil, fmt.Errorf("failed to load suppressions: %w", err)
	}

	// Step 2: Run the rules.
	findings, err := a.engine.Run(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("running rules: %w", err)
	}

	// Step 3: Drop suppressed findings.
	r := &Report{
		Findings: make([]rules.Finding, 0, len(findings)),
		Stats:    Stats{Classes: len(s.Classes()), Targets: len(s.Targets())},
	}
	for _, f := range findings {
		if ok, reason := a.suppressions.IsSuppressed(f.RuleID, f.Class, f.Method, f.Descriptor); ok {
			slog.Debug("finding suppressed", "rule", f.RuleID, "class", f.Class, "method", f.Method, "reason", reason)
			r.Stats.Suppressed++
			findingsSilenced.Inc()
			continue
		}
		r.Findings = append(r.Findings, f)
	}
	r.Stats.Findings = len(r.Findings)
	findingsEmitted.Add(len(r.Findings))

	// Diagnostics are read last so lazily built graphs are included.
	r.Diagnostics = s.Diagnostics()
	return r, nil
}
