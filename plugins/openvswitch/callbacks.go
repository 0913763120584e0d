package openvswitch

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/events"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/options"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// EventCallbacks implements plugin.Plugin.
func (p *Plugin) EventCallbacks(opts *options.Registry) map[string]events.Callback {
	granularity, err := opts.String(options.EventTallyGranularity)
	if err != nil {
		granularity = options.GranularityDate
	}

	return map[string]events.Callback{
		"netdev-linux-no-such-device":     tally(events.TallySpec{Date: 1, Time: 2, Key: 3}, granularity),
		"unreasonably-long-poll-interval": tally(events.TallySpec{Date: 1, Time: 2}, granularity),
		"bfd-state-change":                bfdFlaps,
		"bridge-ports":                    bridgePorts,
	}
}

func tally(spec events.TallySpec, granularity string) events.Callback {
	return func(_ context.Context, ev *events.Event) (any, error) {
		out := events.Tally(ev.Results, spec, granularity)
		if len(out) == 0 {
			return nil, nil
		}

		return out, nil
	}
}

// bfdFlaps counts, per interface, BFD sessions that went down and came back
// up. A down transition without a later up is not a flap.
func bfdFlaps(ctx context.Context, ev *events.Event) (any, error) {
	down := make(map[string]bool, 4)
	flaps := make(map[string]int, 4)

	for _, r := range ev.Results {
		iface := r.Get(3)

		switch {
		case strings.HasSuffix(r.Tag, search.SuffixStart):
			down[iface] = true
		case strings.HasSuffix(r.Tag, search.SuffixEnd):
			if down[iface] {
				flaps[iface]++
				down[iface] = false
			}
		}
	}

	log := observability.LoggerFromContext(ctx, logrus.StandardLogger())

	for iface, isDown := range down {
		if isDown {
			log.WithField("iface", iface).Debug("BFD session still down at end of log")
		}
	}

	if len(flaps) == 0 {
		return nil, nil
	}

	return flaps, nil
}

// bridgePorts maps each bridge of `ovs-vsctl show` to its ports.
func bridgePorts(_ context.Context, ev *events.Event) (any, error) {
	if len(ev.Sections) == 0 {
		return nil, nil
	}

	out := make(map[string][]string, len(ev.Sections))

	for _, sec := range ev.Sections {
		bridge := sec.Start.Get(1)
		ports := make([]string, 0, len(sec.Body))

		for _, b := range sec.Body {
			ports = append(ports, b.Get(1))
		}

		out[bridge] = ports
	}

	return out, nil
}
