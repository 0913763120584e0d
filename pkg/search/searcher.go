package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/ycheck/pkg/observability"
)

// commandSourcePrefix marks sources that are command output.
const commandSourcePrefix = "cmd:"

// Config configures a Searcher.
type Config struct {
	// DataRoot is the directory input paths are relative to.
	DataRoot string
	// MaxParallel bounds the number of sources scanned concurrently.
	MaxParallel int
	// CommandTimeout bounds each command run for command inputs.
	CommandTimeout time.Duration
	// CommandCacheSize is the number of command outputs kept.
	CommandCacheSize int
}

// CommandRunner runs argv and returns its standard output.
type CommandRunner func(ctx context.Context, argv []string) ([]byte, error)

// Searcher scans snapshot sources for search definitions.
type Searcher struct {
	log    logrus.FieldLogger
	cfg    Config
	cache  *lru.Cache[string, []byte]
	runner CommandRunner
}

// Option customises a Searcher.
type Option func(*Searcher)

// WithCommandRunner replaces the runner used for command inputs.
func WithCommandRunner(r CommandRunner) Option {
	return func(s *Searcher) {
		s.runner = r
	}
}

// New creates a Searcher.
func New(log logrus.FieldLogger, cfg Config, opts ...Option) (*Searcher, error) {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}

	if cfg.CommandCacheSize < 1 {
		cfg.CommandCacheSize = 1
	}

	cache, err := lru.New[string, []byte](cfg.CommandCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating command cache: %w", err)
	}

	s := &Searcher{
		log:    log.WithField("component", "searcher"),
		cfg:    cfg,
		cache:  cache,
		runner: execCommand,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func execCommand(ctx context.Context, argv []string) ([]byte, error) {
	//nolint:gosec // commands come from rule definitions.
	return exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
}

// Search resolves the inputs of defs, scans each source once against every
// definition reading it and returns the combined results. At most
// MaxParallel sources are scanned at a time. Unreadable sources and failing
// commands contribute no results.
func (s *Searcher) Search(ctx context.Context, defs []*Def) (*ResultSet, error) {
	start := time.Now()
	defer func() {
		observability.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	bySource, err := s.plan(defs)
	if err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}

	sort.Strings(sources)

	var (
		mu       sync.Mutex
		results  []Result
		sections = make(map[string][]Section, 4)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for _, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			out, err := s.scanSource(gctx, src, bySource[src])
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			results = append(results, out.results...)
			for tag, secs := range out.sections {
				sections[tag] = append(sections[tag], secs...)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	rs := newResultSet(results, sections)

	s.log.WithFields(logrus.Fields{
		"definitions": len(defs),
		"sources":     len(sources),
		"results":     rs.Len(),
	}).Debug("Search complete")

	return rs, nil
}

// plan maps every source to the definitions that read it.
func (s *Searcher) plan(defs []*Def) (map[string][]*Def, error) {
	bySource := make(map[string][]*Def, len(defs))

	for _, d := range defs {
		for _, pattern := range d.Input.Paths {
			matches, err := s.glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("%s: expanding %q: %w", d.Tag, pattern, err)
			}

			for _, m := range matches {
				bySource[m] = appendUnique(bySource[m], d)
			}
		}

		if d.Input.Command != "" {
			src := commandSourcePrefix + d.Input.Command
			bySource[src] = appendUnique(bySource[src], d)
		}
	}

	return bySource, nil
}

func appendUnique(defs []*Def, d *Def) []*Def {
	for _, e := range defs {
		if e == d {
			return defs
		}
	}

	return append(defs, d)
}

// glob expands pattern below the data root and returns regular files as
// paths relative to it.
func (s *Searcher) glob(pattern string) ([]string, error) {
	root := s.cfg.DataRoot

	matches, err := doublestar.Glob(filepath.Join(root, strings.TrimPrefix(pattern, "/")))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(matches))

	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		rel, err := filepath.Rel(root, m)
		if err != nil {
			return nil, err
		}

		out = append(out, filepath.ToSlash(rel))
	}

	return out, nil
}

func (s *Searcher) scanSource(ctx context.Context, src string, defs []*Def) (scanOutput, error) {
	observability.SearchFilesTotal.Inc()

	if cmd, ok := strings.CutPrefix(src, commandSourcePrefix); ok {
		return scan(src, bytes.NewReader(s.commandOutput(ctx, cmd)), defs)
	}

	f, err := os.Open(filepath.Join(s.cfg.DataRoot, filepath.FromSlash(src)))
	if err != nil {
		s.log.WithError(err).WithField("source", src).Debug("Skipping unreadable source")

		return scanOutput{}, nil
	}
	defer f.Close()

	out, err := scan(src, f, defs)
	if err != nil {
		s.log.WithError(err).WithField("source", src).Warn("Partial read of source")
	}

	return out, nil
}

// commandOutput runs cmd with the configured timeout, caching its output.
// Failures and timeouts yield empty output.
func (s *Searcher) commandOutput(ctx context.Context, cmd string) []byte {
	if out, ok := s.cache.Get(cmd); ok {
		return out
	}

	argv := strings.Fields(cmd)
	if len(argv) == 0 {
		return nil
	}

	if s.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}

	out, err := s.runner(ctx, argv)
	if err != nil {
		log := s.log.WithError(err).WithField("command", cmd)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("Command timed out, treating as no output")
		} else {
			log.Warn("Command failed, treating as no output")
		}

		out = nil
	}

	s.cache.Add(cmd, out)

	return out
}
