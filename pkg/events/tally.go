package events

import (
	"github.com/ethpandaops/ycheck/pkg/options"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// TallySpec names the result groups a tally reads. Key may be zero to
// count every result under "total".
type TallySpec struct {
	Date int
	Time int
	Key  int
}

// Tally counts results per time bucket and key. With time granularity the
// bucket is "<date> <time>", otherwise it is the date alone. Results with an
// empty date are ignored.
func Tally(results []search.Result, spec TallySpec, granularity string) map[string]map[string]int {
	out := make(map[string]map[string]int, 4)

	for _, r := range results {
		bucket := r.Get(spec.Date)
		if bucket == "" {
			continue
		}

		if granularity == options.GranularityTime {
			if t := r.Get(spec.Time); t != "" {
				bucket += " " + t
			}
		}

		key := "total"
		if spec.Key > 0 {
			key = r.Get(spec.Key)
		}

		if out[bucket] == nil {
			out[bucket] = make(map[string]int, 2)
		}

		out[bucket][key]++
	}

	return out
}
