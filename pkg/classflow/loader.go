package classflow

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
)

// LoaderOptions configures class loading.
type LoaderOptions struct {
	// Inputs are the .class files, .jar files and directories to analyze.
	Inputs []string

	// Classpath are dependency inputs. Their classes are loaded for
	// hierarchy and call resolution but never reported on.
	Classpath []string
}

// Entry is the bytes of one class file.
type Entry struct {
	// URI locates the class: a file path, or "jar:<path>!/<entry>".
	URI  string
	Data []byte

	// Target is false for dependency classes.
	Target bool
}

// Input is the loaded class bytes in load order.
type Input struct {
	Entries []Entry

	// Failures are inputs that could not be read at all.
	Failures []Diagnostic
}

// skippedEntries are JAR entries that never hold analyzable classes.
var skippedEntries = []string{"module-info.class", "META-INF/versions/**"}

// Load reads every class reachable from the inputs and the classpath. JARs
// named by a manifest Class-Path are followed breadth-first and loaded as
// dependencies. Unreadable entries become failures; a missing input is an
// error.
func Load(ctx context.Context, opts LoaderOptions) (*Input, error) {
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}

	l := &loader{ctx: ctx, in: &Input{}, seenJars: make(map[string]bool)}
	for _, p := range opts.Inputs {
		if err := l.load(p, true); err != nil {
			return nil, err
		}
	}
	for _, p := range opts.Classpath {
		if err := l.load(p, false); err != nil {
			return nil, err
		}
	}

	// Manifest Class-Path entries, breadth-first.
	for len(l.pending) > 0 {
		jar := l.pending[0]
		l.pending = l.pending[1:]
		if _, err := os.Stat(jar); err != nil {
			slog.Debug("manifest class path entry not found", "jar", jar)
			continue
		}
		if err := l.load(jar, false); err != nil {
			return nil, err
		}
	}
	return l.in, nil
}

type loader struct {
	ctx      context.Context
	in       *Input
	seenJars map[string]bool
	pending  []string
}

func (l *loader) load(path string, target bool) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	switch {
	case info.IsDir():
		return l.loadDir(path, target)
	case strings.HasSuffix(path, ".jar"):
		l.loadJar(path, target)
		return nil
	case strings.HasSuffix(path, ".class"):
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		l.in.Entries = append(l.in.Entries, Entry{URI: path, Data: data, Target: target})
		return nil
	}
	return fmt.Errorf("unsupported input %s: expected a .class file, a .jar file or a directory", path)
}

// loadDir walks dir in lexical order.
func (l *loader) loadDir(dir string, target bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !(strings.HasSuffix(path, ".class") || strings.HasSuffix(path, ".jar")) {
			return nil
		}
		return l.load(path, target)
	})
}

func (l *loader) loadJar(path string, target bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if l.seenJars[abs] {
		return
	}
	l.seenJars[abs] = true

	r, err := zip.OpenReader(path)
	if err != nil {
		slog.Warn("reading jar", "jar", path, "error", err)
		l.in.Failures = append(l.in.Failures, Diagnostic{URI: path, Message: err.Error()})
		return
	}
	defer r.Close()

	files := slices.Clone(r.File)
	slices.SortFunc(files, func(a, b *zip.File) int { return strings.Compare(a.Name, b.Name) })
	for _, f := range files {
		switch {
		case f.Name == "META-INF/MANIFEST.MF":
			data, err := readZipEntry(f)
			if err != nil {
				slog.Warn("reading manifest", "jar", path, "error", err)
				continue
			}
			for _, cp := range ManifestClassPath(data) {
				l.pending = append(l.pending, filepath.Join(filepath.Dir(path), filepath.FromSlash(cp)))
			}
		case !strings.HasSuffix(f.Name, ".class") || isSkippedEntry(f.Name):
		default:
			uri := "jar:" + path + "!/" + f.Name
			data, err := readZipEntry(f)
			if err != nil {
				slog.Warn("reading jar entry", "uri", uri, "error", err)
				l.in.Failures = append(l.in.Failures, Diagnostic{URI: uri, Message: err.Error()})
				continue
			}
			l.in.Entries = append(l.in.Entries, Entry{URI: uri, Data: data, Target: target})
		}
	}
}

func isSkippedEntry(name string) bool {
	for _, p := range skippedEntries {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ManifestClassPath returns the space separated entries of the Class-Path
// attribute of a JAR manifest. Continuation lines start with one space.
func ManifestClassPath(manifest []byte) []string {
	var value strings.Builder
	inClassPath := false
	sc := bufio.NewScanner(bytes.NewReader(manifest))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case inClassPath && strings.HasPrefix(line, " "):
			value.WriteString(line[1:])
			continue
		case strings.HasPrefix(line, "Class-Path:"):
			inClassPath = true
			value.WriteString(strings.TrimPrefix(line, "Class-Path:"))
			continue
		}
		inClassPath = false
	}
	if value.Len() == 0 {
		return nil
	}
	return strings.Fields(value.String())
}
