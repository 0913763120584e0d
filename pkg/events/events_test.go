package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/ycheck/pkg/defs"
	"github.com/ethpandaops/ycheck/pkg/facts"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/options"
	"github.com/ethpandaops/ycheck/pkg/search"
)

const eventsDoc = `
group:
  input:
    path: var/log/test.log
  eventA:
    expr: '^A (\d+)'
  eventB:
    expr: '^B (\d+)'
  greeting:
    start: '^hello'
    body: '^\S+'
    end: '^world'
other:
  raw:
    input: {path: var/log/test.log}
    passthrough-results: true
    start: '^hello'
    end: '^world'
  gated:
    input: {path: var/log/test.log}
    requires: {apt: not-installed}
    expr: '^A'
`

func buildTree(t *testing.T, doc string) *defs.Node {
	t.Helper()

	var content map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &content))

	return defs.Build("plugin", content, map[string]string{"plugin": "events.yaml"})
}

// countingSearcher records how often Search is called.
type countingSearcher struct {
	inner Searcher
	calls int
}

func (c *countingSearcher) Search(ctx context.Context, d []*search.Def) (*search.ResultSet, error) {
	c.calls++

	if c.inner == nil {
		return nil, assert.AnError
	}

	return c.inner.Search(ctx, d)
}

func newSearcher(t *testing.T, log string) *search.Searcher {
	t.Helper()

	root := t.TempDir()
	p := filepath.Join(root, "var", "log", "test.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(log), 0o644))

	s, err := search.New(logrus.New(), search.Config{DataRoot: root, MaxParallel: 2, CommandTimeout: time.Second})
	require.NoError(t, err)

	return s
}

func names(defs []*Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Key())
	}

	return out
}

func TestLoadDefinitions(t *testing.T) {
	got, err := LoadDefinitions(buildTree(t, eventsDoc), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"group.eventA", "group.eventB", "group.greeting", "other.gated", "other.raw"}, names(got))

	byKey := make(map[string]*Definition, len(got))
	for _, d := range got {
		byKey[d.Key()] = d
	}

	assert.Equal(t, KindSimple, byKey["group.eventA"].Kind)
	assert.Equal(t, KindSequence, byKey["group.greeting"].Kind)
	assert.Equal(t, KindPassthrough, byKey["other.raw"].Kind)
	assert.Equal(t, []string{"var/log/test.log"}, byKey["group.eventA"].Search.Input.Paths, "input is inherited")
	assert.Equal(t, "plugin.group.eventA", byKey["group.eventA"].Search.Tag)
	assert.NotNil(t, byKey["other.gated"].Requires)
	assert.Equal(t, "events.yaml", byKey["group.eventA"].Source)
}

func TestLoadDefinitions_EventFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{name: "full path", filter: "plugin.group.eventB", want: []string{"group.eventB"}},
		{name: "relative path", filter: "group.eventB", want: []string{"group.eventB"}},
		{name: "no match", filter: "plugin.group.nope", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadDefinitions(buildTree(t, eventsDoc), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestLoadDefinitions_Errors(t *testing.T) {
	_, err := LoadDefinitions(buildTree(t, "group:\n  ev:\n    expr: x\n"), "")
	require.ErrorIs(t, err, ErrNoInput)

	_, err = LoadDefinitions(buildTree(t, "group:\n  input: a\n  ev:\n    hint: x\n"), "")
	require.ErrorIs(t, err, search.ErrNoPattern)
}

func TestHandler_MissingCallbackBeforeSearch(t *testing.T) {
	d, err := LoadDefinitions(buildTree(t, eventsDoc), "")
	require.NoError(t, err)

	s := &countingSearcher{}
	h := NewHandler(logrus.New(), Config{Domain: "plugin", Searcher: s, Facts: &facts.Static{}})
	h.Register("eventA", func(context.Context, *Event) (any, error) { return nil, nil })

	_, err = h.Run(context.Background(), d)
	require.ErrorIs(t, err, ErrCallbackNotFound)

	var cnf *CallbackNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "group.eventB", cnf.Event)
	assert.Zero(t, s.calls, "no search before callbacks are resolved")
}

func TestHandler_Run(t *testing.T) {
	d, err := LoadDefinitions(buildTree(t, eventsDoc), "")
	require.NoError(t, err)

	s := &countingSearcher{inner: newSearcher(t, "A 1\nB 2\nhello\nbrave\nworld\nA 3\n")}
	h := NewHandler(logrus.New(), Config{Domain: "plugin", Searcher: s, Facts: &facts.Static{}})

	calls := make(map[string]int)

	count := func(ctx context.Context, ev *Event) (any, error) {
		calls[ev.Def.Key()]++

		var out []string
		for _, r := range ev.Results {
			out = append(out, r.Get(1))
		}

		return out, nil
	}

	var greeting *Event

	h.RegisterAll(map[string]Callback{
		"eventA": count,
		// The qualified name wins over the bare one.
		"eventB":       func(context.Context, *Event) (any, error) { return "bare", nil },
		"group.eventB": count,
		"greeting": func(_ context.Context, ev *Event) (any, error) {
			greeting = ev

			return nil, nil
		},
		"raw": func(_ context.Context, ev *Event) (any, error) {
			return len(ev.Results), nil
		},
		"gated": func(context.Context, *Event) (any, error) {
			t.Fatal("gated event must not dispatch")

			return nil, nil
		},
	})

	out, err := h.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls, "one search for all events")

	assert.Equal(t, []string{"1", "3"}, out["group.eventA"])
	assert.Equal(t, []string{"2"}, out["group.eventB"])
	assert.Equal(t, 2, out["other.raw"])
	assert.NotContains(t, out, "group.greeting")
	assert.NotContains(t, out, "other.gated")
	assert.Equal(t, 1, calls["group.eventA"])

	require.NotNil(t, greeting)
	require.Len(t, greeting.Sections, 1)

	sec := greeting.Sections[0]
	assert.Equal(t, "hello", sec.Start.Get(0))
	require.Len(t, sec.Body, 1)
	assert.Equal(t, "brave", sec.Body[0].Get(0))
	require.NotNil(t, sec.End)
	assert.Equal(t, "world", sec.End.Get(0))
}

func TestHandler_DispatchesWithoutMatches(t *testing.T) {
	d, err := LoadDefinitions(buildTree(t, eventsDoc), "plugin.group.eventA")
	require.NoError(t, err)

	h := NewHandler(logrus.New(), Config{Domain: "plugin", Searcher: newSearcher(t, "nothing\n")})

	dispatched := 0

	h.Register("eventA", func(_ context.Context, ev *Event) (any, error) {
		dispatched++

		assert.Empty(t, ev.Results)

		return nil, nil
	})

	out, err := h.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, dispatched)
}

func TestHandler_LogsWithContextLogger(t *testing.T) {
	d, err := LoadDefinitions(buildTree(t, eventsDoc), "group.eventA")
	require.NoError(t, err)

	own, ownHook := test.NewNullLogger()
	own.SetLevel(logrus.DebugLevel)

	runLog, runHook := test.NewNullLogger()
	runLog.SetLevel(logrus.DebugLevel)

	h := NewHandler(own, Config{Domain: "plugin", Searcher: newSearcher(t, "A 1\n")})
	h.Register("eventA", func(context.Context, *Event) (any, error) { return nil, nil })

	ctx := observability.WithLogger(context.Background(), runLog.WithField("run_id", "run-1"))

	_, err = h.Run(ctx, d)
	require.NoError(t, err)

	assert.Empty(t, ownHook.AllEntries())

	entry := runHook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Event dispatched", entry.Message)
	assert.Equal(t, "run-1", entry.Data["run_id"])
	assert.Equal(t, "events", entry.Data["component"])
	assert.Equal(t, "group.eventA", entry.Data["event"])
}

func TestHandler_CallbackError(t *testing.T) {
	d, err := LoadDefinitions(buildTree(t, eventsDoc), "group.eventA")
	require.NoError(t, err)

	h := NewHandler(logrus.New(), Config{Domain: "plugin", Searcher: newSearcher(t, "A 1\n")})
	h.Register("eventA", func(context.Context, *Event) (any, error) { return nil, assert.AnError })

	_, err = h.Run(context.Background(), d)
	require.ErrorIs(t, err, assert.AnError)
}

func TestTally(t *testing.T) {
	results := []search.Result{
		{Groups: []string{"", "2024-01-01", "10:00", "br-int"}},
		{Groups: []string{"", "2024-01-01", "10:00", "br-int"}},
		{Groups: []string{"", "2024-01-01", "11:00", "br-ex"}},
		{Groups: []string{"", "2024-01-02", "09:00", "br-int"}},
		{Groups: []string{"", "", "09:00", "br-int"}},
	}

	spec := TallySpec{Date: 1, Time: 2, Key: 3}

	assert.Equal(t, map[string]map[string]int{
		"2024-01-01": {"br-int": 2, "br-ex": 1},
		"2024-01-02": {"br-int": 1},
	}, Tally(results, spec, options.GranularityDate))

	assert.Equal(t, map[string]map[string]int{
		"2024-01-01 10:00": {"br-int": 2},
		"2024-01-01 11:00": {"br-ex": 1},
		"2024-01-02 09:00": {"br-int": 1},
	}, Tally(results, spec, options.GranularityTime))

	assert.Equal(t, map[string]map[string]int{
		"2024-01-01": {"total": 3},
		"2024-01-02": {"total": 1},
	}, Tally(results, TallySpec{Date: 1}, options.GranularityDate))
}
