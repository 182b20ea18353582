// Package main implements the CLI driver for the classflow analyzer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classflow"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
)

// Config holds all command-line configuration options for the classflow analyzer.
type Config struct {
	Inputs       []string // class files, jars and directories to analyze
	Classpath    []string // dependency jars and directories
	ConfigFile   string   // yaml configuration file
	Verbose      bool     // enables detailed output and statistics
	JSON         bool     // enables JSON output format
	Enable       []string // rule ids to run, overriding the config file
	Disable      []string // rule ids to skip, added to the config file
	Include      []string // class patterns to analyze
	Exclude      []string // class patterns to skip
	DOTCallGraph string   // writes the call graph of the targets as Graphviz
	DOTCFG       string   // writes the control-flow graphs of the targets as Graphviz
	Metrics      string   // writes run counters in Prometheus text format
	Profile      bool     // enables CPU and memory profiling
}

const (
	exitFindings = 1
	exitError    = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var config Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "classflow [inputs...]",
		Short: "Find bugs in compiled JVM classes",
		Long: `classflow analyzes .class files, jars and class directories.

It reports:
- DEAD_CODE: methods no entry point reaches
- EXCEPTION_CAUSE_NOT_PRESERVED: catch handlers that throw a new exception without the caught one
- NULLNESS: null flowing into @NonNull positions and unsafe nullness overrides
- RETURN_IN_FINALLY: returns that discard a pending exception`,
		Example: `  classflow build/classes                      # Analyze a class directory
  classflow app.jar -c lib/dep.jar             # Resolve calls into a dependency
  classflow --disable DEAD_CODE app.jar        # Skip a rule
  classflow --json app.jar > report.json       # JSON output to file
  classflow --dot-cfg cfg.dot app.jar          # Render control-flow graphs`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("classflow version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	// Define flags.
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVarP(&config.Classpath, "classpath", "c", nil, "Dependency jars and directories, loaded but not reported on")
	flags.StringVar(&config.ConfigFile, "config", "", "Path to a yaml configuration file")
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&config.JSON, "json", false, "Output in JSON format")
	flags.StringSliceVar(&config.Enable, "enable", nil, "Rule ids to run (default: every rule)")
	flags.StringSliceVar(&config.Disable, "disable", nil, "Rule ids to skip")
	flags.StringSliceVar(&config.Include, "include", nil, "Class patterns to analyze, e.g. com.acme.**")
	flags.StringSliceVar(&config.Exclude, "exclude", nil, "Class patterns to skip")
	flags.StringVar(&config.DOTCallGraph, "dot-callgraph", "", "Write the call graph of the analyzed classes to this file")
	flags.StringVar(&config.DOTCFG, "dot-cfg", "", "Write the control-flow graphs of the analyzed methods to this file")
	flags.StringVar(&config.Metrics, "metrics", "", "Write run counters in Prometheus text format to this file")
	flags.BoolVar(&config.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	config.Inputs = args
	slog.Info("starting analysis", "inputs", config.Inputs, "classpath", config.Classpath)

	result, s, err := runAnalysis(cmd.Context(), &config)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(result, &config); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	if err := writeGraphs(s, &config); err != nil {
		return errWithCode(err, exitError)
	}
	if config.Metrics != "" {
		if err := writeFile(config.Metrics, func(f *os.File) error {
			classflow.WriteMetrics(f)
			return nil
		}); err != nil {
			return errWithCode(fmt.Errorf("write metrics: %w", err), exitError)
		}
	}

	if len(result.Findings) > 0 {
		return errWithCode(nil, exitFindings)
	}
	return nil
}

// Result is the report of one run with its duration.
type Result struct {
	*classflow.Report
	AnalysisDuration time.Duration
}

// loadConfig reads the configuration file, if any, and applies the flags
// on top of it.
func loadConfig(c *Config) (*classflow.Config, error) {
	fc := &classflow.Config{}
	if c.ConfigFile != "" {
		var err error
		if fc, err = classflow.LoadConfig(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	if len(c.Enable) > 0 {
		fc.Rules.Enable = c.Enable
	}
	fc.Rules.Disable = append(fc.Rules.Disable, c.Disable...)
	fc.Include = append(fc.Include, c.Include...)
	fc.Exclude = append(fc.Exclude, c.Exclude...)
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func runAnalysis(ctx context.Context, c *Config) (*Result, *classflow.Session, error) {
	start := time.Now()

	fc, err := loadConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	analyzer, err := classflow.NewAnalyzer(classflow.AnalyzerOptions{
		Enable:   fc.Rules.Enable,
		Disable:  fc.Rules.Disable,
		Suppress: fc.Suppressions(),
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("rules selected", "rules", analyzer.Rules())

	in, err := classflow.Load(ctx, classflow.LoaderOptions{Inputs: c.Inputs, Classpath: c.Classpath})
	if err != nil {
		return nil, nil, fmt.Errorf("loading classes: %w", err)
	}
	slog.Info("loaded classes", "num", len(in.Entries), "failures", len(in.Failures))

	s, err := classflow.NewSession(ctx, in, classflow.SessionOptions{
		Include: fc.Include,
		Exclude: fc.Exclude,
		Limits:  fc.FlowLimits(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building session: %w", err)
	}

	slog.Info("running analysis")
	report, err := analyzer.Analyze(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	duration := time.Since(start)
	slog.Info("analysis completed", "dur", duration)

	return &Result{Report: report, AnalysisDuration: duration}, s, nil
}

func writeResults(result *Result, c *Config) error {
	var output string
	var err error

	if c.JSON {
		output, err = formatJSONOutput(result)
	} else {
		output = formatTextOutput(result, c)
	}

	if err != nil {
		return err
	}

	fmt.Print(output)
	return nil
}

func formatJSONOutput(result *Result) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Findings:    result.Findings,
		Diagnostics: result.Diagnostics,
		Stats: jStats{
			Stats:            result.Stats,
			AnalysisDuration: result.AnalysisDuration,
		},
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(result *Result, c *Config) string {
	var output strings.Builder

	if c.Verbose {
		slog.Info("",
			"classes", result.Stats.Classes,
			"targets", result.Stats.Targets,
			"findings", result.Stats.Findings,
			"suppressed", result.Stats.Suppressed,
			"analysis_duration", result.AnalysisDuration.String())
	}

	for _, d := range result.Diagnostics {
		slog.Warn("not analyzed", "uri", d.URI, "class", d.Class, "error", d.Message)
	}

	if len(result.Findings) == 0 {
		slog.Info("no findings")
		return output.String()
	}

	for _, f := range result.Findings {
		// Format: class.method desc@offset [line N] RULE message
		location := fmt.Sprintf("%s.%s%s@%d", f.Class, f.Method, f.Descriptor, f.Offset)
		if f.Line > 0 {
			location += fmt.Sprintf(" line %d", f.Line)
		}
		if !c.Verbose {
			output.WriteString(fmt.Sprintf("%s %s\n", location, f.RuleID))
		} else {
			output.WriteString(fmt.Sprintf("%s %s: %s\n", location, f.RuleID, f.Message))
		}
	}

	return output.String()
}

type jOutput struct {
	Findings    any    `json:"findings"`
	Diagnostics any    `json:"diagnostics"`
	Stats       jStats `json:"stats"`
	Version     string `json:"version"`
	Timestamp   string `json:"timestamp"`
}

type jStats struct {
	classflow.Stats
	AnalysisDuration time.Duration `json:"analysis_duration"`
}

// writeGraphs writes the requested Graphviz renderings of the targets.
func writeGraphs(s *classflow.Session, c *Config) error {
	if c.DOTCallGraph == "" && c.DOTCFG == "" {
		return nil
	}
	var methods []*ir.Method
	for _, cl := range s.Targets() {
		for _, m := range cl.Methods {
			if m.HasCode {
				methods = append(methods, m)
			}
		}
	}

	if c.DOTCallGraph != "" {
		dot := hierarchy.DOT(s.CallGraph().Graph(methods), "call graph")
		if err := os.WriteFile(c.DOTCallGraph, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write call graph: %w", err)
		}
		slog.Info("call graph written", "file", c.DOTCallGraph, "methods", len(methods))
	}

	if c.DOTCFG != "" {
		var graphs []*cfg.Graph
		for _, m := range methods {
			g, err := s.CFG(m)
			if err != nil {
				continue
			}
			graphs = append(graphs, g)
		}
		if err := os.WriteFile(c.DOTCFG, []byte(cfg.DOT(graphs, "control flow")), 0o644); err != nil {
			return fmt.Errorf("write control-flow graphs: %w", err)
		}
		slog.Info("control-flow graphs written", "file", c.DOTCFG, "methods", len(graphs))
	}
	return nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if config.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if config.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !config.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !config.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error {
	return e.err
}
