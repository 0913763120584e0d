package search

import "sort"

// Result is one matched line.
type Result struct {
	Tag    string
	Source string
	LineNo int
	// Groups holds the full match at index 0 followed by submatches.
	Groups []string
	// Section is the id of the sequence section the result belongs to, or
	// zero for simple results.
	Section int
}

// Get returns group i, or "" when the group does not exist.
func (r Result) Get(i int) string {
	if i < 0 || i >= len(r.Groups) {
		return ""
	}

	return r.Groups[i]
}

// Line returns the full matched text.
func (r Result) Line() string {
	return r.Get(0)
}

// Section is one complete sequence record.
type Section struct {
	ID     int
	Source string
	Start  Result
	Body   []Result
	// End is nil when the definition declares no end pattern.
	End *Result
}

// ResultSet holds the results of one search, ordered by source and line.
type ResultSet struct {
	results  []Result
	byTag    map[string][]int
	sections map[string][]Section
}

func less(a, b Result) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}

	if a.LineNo != b.LineNo {
		return a.LineNo < b.LineNo
	}

	return a.Tag < b.Tag
}

// newResultSet orders results and sections independently of the order in
// which concurrent scans produced them, then numbers sections.
func newResultSet(results []Result, sections map[string][]Section) *ResultSet {
	rs := &ResultSet{
		byTag:    make(map[string][]int, 8),
		sections: sections,
	}

	nextID := 1

	tags := make([]string, 0, len(sections))
	for tag := range sections {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	for _, tag := range tags {
		secs := sections[tag]
		sort.SliceStable(secs, func(i, j int) bool { return less(secs[i].Start, secs[j].Start) })

		for i := range secs {
			secs[i].ID = nextID
			secs[i].Start.Section = nextID

			for j := range secs[i].Body {
				secs[i].Body[j].Section = nextID
			}

			if secs[i].End != nil {
				secs[i].End.Section = nextID
			}

			results = append(results, secs[i].Start)
			results = append(results, secs[i].Body...)

			if secs[i].End != nil {
				results = append(results, *secs[i].End)
			}

			nextID++
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return less(results[i], results[j]) })

	rs.results = results
	for i, r := range results {
		rs.byTag[r.Tag] = append(rs.byTag[r.Tag], i)
	}

	return rs
}

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	return len(rs.results)
}

// All returns every result.
func (rs *ResultSet) All() []Result {
	return rs.results
}

// Find returns the results carrying tag.
func (rs *ResultSet) Find(tag string) []Result {
	idx := rs.byTag[tag]
	out := make([]Result, 0, len(idx))

	for _, i := range idx {
		out = append(out, rs.results[i])
	}

	return out
}

// FindTags returns the results carrying any of tags, in result order.
func (rs *ResultSet) FindTags(tags ...string) []Result {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	var out []Result

	for _, r := range rs.results {
		if _, ok := want[r.Tag]; ok {
			out = append(out, r)
		}
	}

	return out
}

// Sections returns the complete sequence records found for the sequence
// definition tagged tag.
func (rs *ResultSet) Sections(tag string) []Section {
	return rs.sections[tag]
}
