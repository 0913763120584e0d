package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	return root
}

func newSearcher(t *testing.T, root string, opts ...Option) *Searcher {
	t.Helper()

	s, err := New(logrus.New(), Config{DataRoot: root, MaxParallel: 4, CommandTimeout: time.Second, CommandCacheSize: 8}, opts...)
	require.NoError(t, err)

	return s
}

func mustDef(t *testing.T, tag string, in Input, p Patterns) *Def {
	t.Helper()

	d, err := NewDef(tag, in, p)
	require.NoError(t, err)

	return d
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Input
		wantErr bool
	}{
		{name: "string", raw: "var/log/syslog", want: Input{Paths: []string{"var/log/syslog"}}},
		{name: "path mapping", raw: map[string]any{"path": "var/log/*.log"}, want: Input{Paths: []string{"var/log/*.log"}}},
		{name: "path list", raw: map[string]any{"path": []any{"a", "b"}}, want: Input{Paths: []string{"a", "b"}}},
		{name: "command", raw: map[string]any{"command": "ovs-vsctl show"}, want: Input{Command: "ovs-vsctl show"}},
		{name: "empty mapping", raw: map[string]any{}, wantErr: true},
		{name: "bad path", raw: map[string]any{"path": 1}, wantErr: true},
		{name: "bad type", raw: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.raw)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDef_Errors(t *testing.T) {
	_, err := NewDef("x", Input{}, Patterns{})
	require.ErrorIs(t, err, ErrNoPattern)

	_, err = NewDef("x", Input{}, Patterns{Expr: "a", Start: "b"})
	require.Error(t, err)

	_, err = NewDef("x", Input{}, Patterns{Expr: "("})
	require.Error(t, err)
}

func TestSearch_Simple(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"var/log/a.log":        "2024-01-01 ERROR one\nINFO two\n2024-01-02 ERROR three\n",
		"var/log/nested/b.log": "2024-01-03 ERROR four\n",
	})

	d := mustDef(t, "errors", Input{Paths: []string{"var/log/**/*.log"}}, Patterns{
		Hint: "ERROR",
		Expr: `^(\S+) ERROR (\S+)`,
	})

	rs, err := newSearcher(t, root).Search(context.Background(), []*Def{d})
	require.NoError(t, err)

	got := rs.Find("errors")
	require.Len(t, got, 3)

	assert.Equal(t, "var/log/a.log", got[0].Source)
	assert.Equal(t, 1, got[0].LineNo)
	assert.Equal(t, "2024-01-01 ERROR one", got[0].Get(0))
	assert.Equal(t, "one", got[0].Get(2))
	assert.Equal(t, "", got[0].Get(9))
	assert.Equal(t, 3, got[1].LineNo)
	assert.Equal(t, "var/log/nested/b.log", got[2].Source)
	assert.Equal(t, "four", got[2].Get(2))
}

func TestSearch_Sequence(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"log": "hello\nbrave\nworld\n",
	})

	d := mustDef(t, "seq", Input{Paths: []string{"log"}}, Patterns{
		Start: `^hello`,
		Body:  `^\S+`,
		End:   `^world`,
	})

	rs, err := newSearcher(t, root).Search(context.Background(), []*Def{d})
	require.NoError(t, err)

	secs := rs.Sections("seq")
	require.Len(t, secs, 1)

	sec := secs[0]
	assert.Equal(t, "hello", sec.Start.Get(0))
	require.Len(t, sec.Body, 1)
	assert.Equal(t, "brave", sec.Body[0].Get(0))
	require.NotNil(t, sec.End)
	assert.Equal(t, "world", sec.End.Get(0))

	assert.Len(t, rs.Find("seq-start"), 1)
	assert.Len(t, rs.Find("seq-body"), 1)
	assert.Len(t, rs.Find("seq-end"), 1)
	assert.Equal(t, sec.ID, rs.Find("seq-end")[0].Section)
}

func TestSearch_SequenceEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		patterns  Patterns
		wantStart []string
		wantBody  [][]string
	}{
		{
			name:      "trailing start without end is dropped",
			content:   "begin 1\nx\nend\nbegin 2\ny\n",
			patterns:  Patterns{Start: `^begin (\d)`, Body: `^\w$`, End: `^end`},
			wantStart: []string{"begin 1"},
			wantBody:  [][]string{{"x"}},
		},
		{
			name:      "restart before end abandons the first",
			content:   "begin 1\nx\nbegin 2\ny\nend\n",
			patterns:  Patterns{Start: `^begin (\d)`, Body: `^\w$`, End: `^end`},
			wantStart: []string{"begin 2"},
			wantBody:  [][]string{{"y"}},
		},
		{
			name:      "without end sections close at next start and eof",
			content:   "begin 1\nx\nbegin 2\ny\nz\n",
			patterns:  Patterns{Start: `^begin (\d)`, Body: `^\w$`},
			wantStart: []string{"begin 1", "begin 2"},
			wantBody:  [][]string{{"x"}, {"y", "z"}},
		},
		{
			name:      "no body pattern",
			content:   "begin 1\nx\nend\n",
			patterns:  Patterns{Start: `^begin (\d)`, End: `^end`},
			wantStart: []string{"begin 1"},
			wantBody:  [][]string{nil},
		},
		{
			name:     "no start",
			content:  "x\nend\n",
			patterns: Patterns{Start: `^begin`, End: `^end`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeFiles(t, map[string]string{"log": tt.content})
			d := mustDef(t, "s", Input{Paths: []string{"log"}}, tt.patterns)

			rs, err := newSearcher(t, root).Search(context.Background(), []*Def{d})
			require.NoError(t, err)

			secs := rs.Sections("s")
			require.Len(t, secs, len(tt.wantStart))

			for i, sec := range secs {
				assert.Equal(t, tt.wantStart[i], sec.Start.Get(0))

				var body []string
				for _, b := range sec.Body {
					body = append(body, b.Get(0))
				}

				assert.Equal(t, tt.wantBody[i], body)
			}
		})
	}
}

func TestSearch_Passthrough(t *testing.T) {
	root := writeFiles(t, map[string]string{"log": "begin\nx\nbegin\n"})

	d := mustDef(t, "p", Input{Paths: []string{"log"}}, Patterns{Start: `^begin`, End: `^end`})
	d.Passthrough = true

	rs, err := newSearcher(t, root).Search(context.Background(), []*Def{d})
	require.NoError(t, err)

	assert.Empty(t, rs.Sections("p"))

	raw := rs.FindTags(d.Tags()...)
	require.Len(t, raw, 2)
	assert.Equal(t, "p-start", raw[0].Tag)
	assert.Equal(t, 3, raw[1].LineNo)
}

func TestSearch_SharedSourceAndOrdering(t *testing.T) {
	files := make(map[string]string, 20)
	for i := 0; i < 20; i++ {
		files[filepath.Join("logs", string(rune('a'+i))+".log")] = "start\nmid\nstop\n"
	}

	root := writeFiles(t, files)

	in := Input{Paths: []string{"logs/*.log"}}
	seq := mustDef(t, "seq", in, Patterns{Start: "^start", End: "^stop"})
	simple := mustDef(t, "mid", in, Patterns{Expr: "^mid"})

	s := newSearcher(t, root)

	first, err := s.Search(context.Background(), []*Def{seq, simple})
	require.NoError(t, err)

	second, err := s.Search(context.Background(), []*Def{simple, seq})
	require.NoError(t, err)

	require.Len(t, first.Sections("seq"), 20)
	assert.Equal(t, first.All(), second.All())
	assert.Equal(t, first.Sections("seq"), second.Sections("seq"))

	for i, sec := range first.Sections("seq") {
		assert.Equal(t, i+1, sec.ID)
	}
}

func TestSearch_Command(t *testing.T) {
	var calls atomic.Int32

	runner := func(_ context.Context, argv []string) ([]byte, error) {
		calls.Add(1)

		if argv[0] == "fail" {
			return []byte("ignored"), errors.New("exit status 1")
		}

		return []byte(strings.Join(argv[1:], "\n") + "\n"), nil
	}

	s := newSearcher(t, t.TempDir(), WithCommandRunner(runner))

	ok := mustDef(t, "ok", Input{Command: "echo alpha beta"}, Patterns{Expr: "^b"})
	bad := mustDef(t, "bad", Input{Command: "fail now"}, Patterns{Expr: "."})

	rs, err := s.Search(context.Background(), []*Def{ok, bad})
	require.NoError(t, err)

	got := rs.Find("ok")
	require.Len(t, got, 1)
	assert.Equal(t, "cmd:echo alpha beta", got[0].Source)
	assert.Equal(t, 2, got[0].LineNo)
	assert.Empty(t, rs.Find("bad"))

	_, err = s.Search(context.Background(), []*Def{ok, bad})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "command output is cached")
}

func TestSearch_CommandTimeout(t *testing.T) {
	runner := func(ctx context.Context, _ []string) ([]byte, error) {
		<-ctx.Done()

		return []byte("late\n"), ctx.Err()
	}

	s, err := New(logrus.New(), Config{CommandTimeout: 10 * time.Millisecond}, WithCommandRunner(runner))
	require.NoError(t, err)

	d := mustDef(t, "slow", Input{Command: "sleep 10"}, Patterns{Expr: "late"})

	rs, err := s.Search(context.Background(), []*Def{d})
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
}

func TestSearch_MissingInputs(t *testing.T) {
	d := mustDef(t, "x", Input{Paths: []string{"does/not/exist", "nope/*.log"}}, Patterns{Expr: "."})

	rs, err := newSearcher(t, t.TempDir()).Search(context.Background(), []*Def{d})
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
}

func TestSearch_Cancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"log": "x\n"})
	d := mustDef(t, "x", Input{Paths: []string{"log"}}, Patterns{Expr: "."})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSearcher(t, root).Search(ctx, []*Def{d})
	require.ErrorIs(t, err, context.Canceled)
}
