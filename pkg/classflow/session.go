package classflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
	"github.com/715d/classflow/pkg/nullness"
)

// SessionOptions configures a session.
type SessionOptions struct {
	// Include and Exclude are doublestar patterns over dotted class names
	// selecting which targets are analyzed.
	Include []string
	Exclude []string

	Limits dataflow.Limits
}

// Session holds every loaded class of one analysis run and lazily computed
// per-method facts. It is safe for concurrent use once built.
type Session struct {
	classes []*ir.Class
	targets []*ir.Class
	target  map[string]bool
	uris    map[string]string

	universe  *hierarchy.Universe
	callGraph *hierarchy.CallGraph
	resolver  *nullness.Resolver
	limits    dataflow.Limits

	graphs *xsync.Map[*ir.Method, graphEntry]
	flows  *xsync.Map[*ir.Method, flowEntry]

	mu          sync.Mutex
	diagnostics []Diagnostic
}

type graphEntry struct {
	g   *cfg.Graph
	err error
}

type flowEntry struct {
	r   *nullness.Result
	err error
}

type parsed struct {
	cf   *classfile.ClassFile
	uri  string
	diag *Diagnostic
}

// NewSession parses and builds every entry of in. A class that fails to
// parse or build becomes a diagnostic; the rest of the run continues.
func NewSession(ctx context.Context, in *Input, opts SessionOptions) (*Session, error) {
	if opts.Limits == (dataflow.Limits{}) {
		opts.Limits = dataflow.DefaultLimits()
	}
	for _, p := range slices.Concat(opts.Include, opts.Exclude) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid class pattern %q", p)
		}
	}

	s := &Session{
		target: make(map[string]bool),
		uris:   make(map[string]string),
		limits: opts.Limits,
		graphs: xsync.NewMap[*ir.Method, graphEntry](),
		flows:  xsync.NewMap[*ir.Method, flowEntry](),
	}
	s.diagnostics = append(s.diagnostics, in.Failures...)

	// Step 1: Parse class files.
	files := make([]parsed, len(in.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, e := range in.Entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cf, err := classfile.Parse(e.Data)
			if err != nil {
				slog.Warn("parsing class", "uri", e.URI, "error", err)
				classesFailed.Inc()
				files[idx] = parsed{uri: e.URI, diag: &Diagnostic{URI: e.URI, Message: err.Error()}}
				return nil
			}
			files[idx] = parsed{cf: cf, uri: e.URI}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 2: Keep the first definition of every class.
	byName := make(map[string]*classfile.ClassFile)
	var order []int
	for idx, p := range files {
		if p.diag != nil {
			s.diagnostics = append(s.diagnostics, *p.diag)
			continue
		}
		if _, dup := byName[p.cf.Name]; dup {
			slog.Debug("duplicate class ignored", "class", p.cf.Name, "uri", p.uri)
			continue
		}
		byName[p.cf.Name] = p.cf
		order = append(order, idx)
	}

	// Step 3: Build the IR with null-marked scopes resolved.
	scopes := newScopes(byName)
	built := make([]*ir.Class, len(order))
	errs := make([]error, len(order))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for i, idx := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cf := files[idx].cf
			built[i], errs[i] = ir.Build(cf, ir.BuildOptions{InheritedNullMarked: scopes.inherited(cf.Name)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, idx := range order {
		p := files[idx]
		if errs[i] != nil {
			slog.Warn("building class", "class", p.cf.Name, "uri", p.uri, "error", errs[i])
			classesFailed.Inc()
			s.diagnostics = append(s.diagnostics, Diagnostic{URI: p.uri, Class: p.cf.Name, Message: errs[i].Error()})
			continue
		}
		c := built[i]
		for _, w := range c.Warnings {
			slog.Debug("class warning", "class", c.Name, "warning", w)
		}
		classesLoaded.Inc()
		s.classes = append(s.classes, c)
		s.uris[c.Name] = p.uri
		if in.Entries[idx].Target && selected(c.Name, opts.Include, opts.Exclude) {
			s.targets = append(s.targets, c)
			s.target[c.Name] = true
		}
	}
	slices.SortFunc(s.targets, func(a, b *ir.Class) int { return strings.Compare(a.Name, b.Name) })

	// Step 4: Build the hierarchy.
	s.universe = hierarchy.NewUniverse(s.classes)
	s.callGraph = hierarchy.NewCallGraph(s.universe)
	s.resolver = nullness.NewResolver(s.universe)
	slog.Info("session built", "classes", len(s.classes), "targets", len(s.targets), "diagnostics", len(s.diagnostics))
	return s, nil
}

// selected applies include and exclude patterns to a class name.
func selected(name string, include, exclude []string) bool {
	match := func(patterns []string) bool {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(strings.ReplaceAll(p, ".", "/"), name); ok {
				return true
			}
		}
		return false
	}
	if len(include) > 0 && !match(include) {
		return false
	}
	return !match(exclude)
}

// scopes resolves @NullMarked on packages and enclosing classes.
type scopes struct {
	files  map[string]*classfile.ClassFile
	marked map[string]bool
}

func newScopes(files map[string]*classfile.ClassFile) *scopes {
	s := &scopes{files: files, marked: make(map[string]bool)}
	for name, cf := range files {
		if pkg, ok := strings.CutSuffix(name, "/package-info"); ok {
			s.marked[pkg+"/"] = ir.HasAnnotation(cf.Attributes.Annotations, ir.NullMarkedAnnotation)
		}
	}
	// Classes are resolved outermost first so the map is read-only once
	// the builders start.
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int { return strings.Count(a, "$") - strings.Count(b, "$") })
	for _, name := range names {
		s.marked[name] = s.resolve(name)
	}
	return s
}

func (s *scopes) resolve(name string) bool {
	cf := s.files[name]
	inherited := s.inherited(name)
	switch {
	case ir.HasAnnotation(cf.Attributes.Annotations, ir.NullUnmarkedAnnotation):
		return false
	case ir.HasAnnotation(cf.Attributes.Annotations, ir.NullMarkedAnnotation):
		return true
	}
	return inherited
}

// inherited reports whether the scope enclosing name is null-marked.
func (s *scopes) inherited(name string) bool {
	if i := strings.LastIndexByte(name, '$'); i > 0 {
		if marked, ok := s.marked[name[:i]]; ok {
			return marked
		}
	}
	pkg := ir.PackageOf(name)
	return s.marked[pkg+"/"]
}

// Classes returns every loaded class, targets and dependencies.
func (s *Session) Classes() []*ir.Class {
	return s.classes
}

// Targets returns the classes under analysis sorted by name.
func (s *Session) Targets() []*ir.Class {
	return s.targets
}

// IsAnalysisTarget reports whether class is first-party.
func (s *Session) IsAnalysisTarget(class string) bool {
	return s.target[class]
}

// URI returns where class was loaded from.
func (s *Session) URI(class string) string {
	return s.uris[class]
}

func (s *Session) Universe() *hierarchy.Universe {
	return s.universe
}

func (s *Session) CallGraph() *hierarchy.CallGraph {
	return s.callGraph
}

func (s *Session) Limits() dataflow.Limits {
	return s.limits
}

// CallTargets returns the candidate callees of a call site.
func (s *Session) CallTargets(site hierarchy.CallSite) hierarchy.CandidateSet {
	return s.callGraph.Targets(site)
}

// CFG returns the control-flow graph of m, building it on first use. A
// graph that cannot be built is recorded as a diagnostic once.
func (s *Session) CFG(m *ir.Method) (*cfg.Graph, error) {
	if e, ok := s.graphs.Load(m); ok {
		return e.g, e.err
	}
	g, err := cfg.Build(m)
	e, loaded := s.graphs.LoadOrStore(m, graphEntry{g: g, err: err})
	if !loaded && err != nil {
		cfgFailures.Inc()
		var tableErr *cfg.InvalidExceptionTableError
		if errors.As(err, &tableErr) {
			slog.Warn("invalid exception table", "method", m.String(), "error", err)
		}
		s.addDiagnostic(Diagnostic{URI: s.uris[m.Owner], Class: m.Owner, Message: fmt.Sprintf("%s: %v", m, err)})
	}
	return e.g, e.err
}

// Nullness returns the nullness fixed point of m, computing it on first use.
func (s *Session) Nullness(m *ir.Method) (*nullness.Result, error) {
	if e, ok := s.flows.Load(m); ok {
		return e.r, e.err
	}
	e := flowEntry{}
	g, err := s.CFG(m)
	if err != nil {
		e.err = err
	} else {
		c, _ := s.universe.Class(m.Owner)
		e.r, e.err = nullness.Analyze(s.resolver, c, g, s.limits)
		if e.err == nil {
			methodsAnalyzed.Inc()
			if b := e.r.Flow.Budget; b != nil {
				budgetExceeded.Inc()
				slog.Debug("flow budget exceeded", "method", m.String(), "limit", b.Limit)
			}
		}
	}
	e, _ = s.flows.LoadOrStore(m, e)
	return e.r, e.err
}

// NullnessStateAt returns the nullness state ahead of the instruction at
// offset in m.
func (s *Session) NullnessStateAt(m *ir.Method, offset int) (*dataflow.Frame[nullness.Value], error) {
	r, err := s.Nullness(m)
	if err != nil {
		return nil, err
	}
	f, ok := r.StateAt(offset)
	if !ok {
		return nil, fmt.Errorf("no state at offset %d of %s", offset, m)
	}
	return f, nil
}

func (s *Session) addDiagnostic(d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
}

// Diagnostics returns the classes and methods that could not be analyzed,
// sorted by URI and class.
func (s *Session) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.diagnostics)
	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		if c := strings.Compare(a.URI, b.URI); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
	return out
}
