package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/facts"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// ErrCallbackNotFound is matched by CallbackNotFoundError.
var ErrCallbackNotFound = errors.New("event callback not found")

// CallbackNotFoundError reports a declared event with no registered
// callback.
type CallbackNotFoundError struct {
	Event string
}

func (e *CallbackNotFoundError) Error() string {
	return fmt.Sprintf("no callback registered for event %q", e.Event)
}

// Is makes errors.Is(err, ErrCallbackNotFound) hold.
func (e *CallbackNotFoundError) Is(target error) bool {
	return target == ErrCallbackNotFound
}

// Event is handed to a callback once per declared event.
type Event struct {
	Def *Definition
	// Results holds the matches of simple events and the raw, ungrouped
	// matches of passthrough events.
	Results []search.Result
	// Sections holds the complete records of sequence events.
	Sections []search.Section
}

// Callback consumes one event. A non-nil output is reported under the
// event's key.
type Callback func(ctx context.Context, ev *Event) (any, error)

// Searcher runs search definitions.
type Searcher interface {
	Search(ctx context.Context, defs []*search.Def) (*search.ResultSet, error)
}

// Config configures a Handler.
type Config struct {
	Domain   string
	Searcher Searcher
	// Facts backs event requirements. May be nil when no event declares
	// requires.
	Facts facts.Facts
}

// Handler dispatches events to callbacks registered by name.
type Handler struct {
	log       logrus.FieldLogger
	cfg       Config
	mu        sync.RWMutex
	callbacks map[string]Callback
}

// NewHandler creates a Handler.
func NewHandler(log logrus.FieldLogger, cfg Config) *Handler {
	return &Handler{
		log: log.WithFields(logrus.Fields{
			"component": "events",
			"domain":    cfg.Domain,
		}),
		cfg:       cfg,
		callbacks: make(map[string]Callback, 8),
	}
}

// Register registers cb for an event. name is either the bare event name or
// "<group>.<event>"; the qualified form wins when both exist.
func (h *Handler) Register(name string, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks[name] = cb
}

// RegisterAll registers every callback in cbs.
func (h *Handler) RegisterAll(cbs map[string]Callback) {
	for name, cb := range cbs {
		h.Register(name, cb)
	}
}

func (h *Handler) callback(d *Definition) (Callback, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if cb, ok := h.callbacks[d.Key()]; ok {
		return cb, nil
	}

	if cb, ok := h.callbacks[d.Name]; ok {
		return cb, nil
	}

	return nil, &CallbackNotFoundError{Event: d.Key()}
}

// Run searches for every definition and dispatches each event exactly once,
// in definition order. Callbacks are resolved before anything is searched.
// It returns the non-nil callback outputs keyed by event key. A logger
// carried by ctx replaces the handler's own for the duration of the run.
func (h *Handler) Run(ctx context.Context, defs []*Definition) (map[string]any, error) {
	log := observability.LoggerFromContext(ctx, h.log).WithField("component", "events")

	callbacks := make([]Callback, len(defs))

	for i, d := range defs {
		cb, err := h.callback(d)
		if err != nil {
			return nil, err
		}

		callbacks[i] = cb
	}

	active := make([]int, 0, len(defs))

	for i, d := range defs {
		if d.Requires != nil {
			if h.cfg.Facts == nil {
				return nil, fmt.Errorf("event %s declares requires but no facts are available", d.Path)
			}

			ok, err := d.Requires.Eval(h.cfg.Facts)
			if err != nil {
				return nil, fmt.Errorf("event %s requires: %w", d.Path, err)
			}

			if !ok {
				log.WithField("event", d.Path).Debug("Event requirements not met, excluding")

				continue
			}
		}

		active = append(active, i)
	}

	outputs := make(map[string]any, len(active))

	if len(active) == 0 {
		return outputs, nil
	}

	searchDefs := make([]*search.Def, 0, len(active))
	for _, i := range active {
		searchDefs = append(searchDefs, defs[i].Search)
	}

	rs, err := h.cfg.Searcher.Search(ctx, searchDefs)
	if err != nil {
		return nil, fmt.Errorf("searching events of %s: %w", h.cfg.Domain, err)
	}

	for _, i := range active {
		d := defs[i]
		ev := classify(d, rs)

		out, err := callbacks[i](ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", d.Key(), err)
		}

		observability.EventsDispatchedTotal.WithLabelValues(h.cfg.Domain, string(d.Kind)).Inc()

		log.WithFields(logrus.Fields{
			"event":    d.Key(),
			"results":  len(ev.Results),
			"sections": len(ev.Sections),
		}).Debug("Event dispatched")

		if out != nil {
			outputs[d.Key()] = out
		}
	}

	return outputs, nil
}

func classify(d *Definition, rs *search.ResultSet) *Event {
	ev := &Event{Def: d}

	switch d.Kind {
	case KindSequence:
		ev.Sections = rs.Sections(d.Search.Tag)
	case KindPassthrough:
		ev.Results = rs.FindTags(d.Search.Tags()...)
	default:
		ev.Results = rs.Find(d.Search.Tag)
	}

	return ev
}
