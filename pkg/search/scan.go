package search

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
)

// maxLineSize bounds a single scanned line.
const maxLineSize = 4 * 1024 * 1024

// sequenceState tracks the open section of one sequence definition while a
// source is scanned.
type sequenceState struct {
	def  *Def
	open *Section
	done []Section
}

func (s *sequenceState) line(source string, lineNo int, text string) {
	d := s.def

	if s.open != nil {
		if d.End != nil {
			if m := d.End.FindStringSubmatch(text); m != nil {
				end := Result{Tag: d.Tag + SuffixEnd, Source: source, LineNo: lineNo, Groups: m}
				s.open.End = &end
				s.done = append(s.done, *s.open)
				s.open = nil

				return
			}
		}

		if m := d.Start.FindStringSubmatch(text); m != nil {
			// A new start closes an end-less section and abandons an
			// unterminated one.
			if d.End == nil {
				s.done = append(s.done, *s.open)
			}

			s.begin(source, lineNo, m)

			return
		}

		if d.Body != nil {
			if m := d.Body.FindStringSubmatch(text); m != nil {
				s.open.Body = append(s.open.Body, Result{
					Tag: d.Tag + SuffixBody, Source: source, LineNo: lineNo, Groups: m,
				})
			}
		}

		return
	}

	if m := d.Start.FindStringSubmatch(text); m != nil {
		s.begin(source, lineNo, m)
	}
}

func (s *sequenceState) begin(source string, lineNo int, m []string) {
	s.open = &Section{
		Source: source,
		Start:  Result{Tag: s.def.Tag + SuffixStart, Source: source, LineNo: lineNo, Groups: m},
	}
}

func (s *sequenceState) finish() []Section {
	if s.open != nil && s.def.End == nil {
		s.done = append(s.done, *s.open)
	}

	s.open = nil

	return s.done
}

// scanOutput is what one source contributes to a result set.
type scanOutput struct {
	results  []Result
	sections map[string][]Section
}

// scan reads r line by line and applies every definition in defs.
func scan(source string, r io.Reader, defs []*Def) (scanOutput, error) {
	out := scanOutput{sections: make(map[string][]Section, 2)}

	var seqs []*sequenceState

	for _, d := range defs {
		if d.IsSequence() && !d.Passthrough {
			seqs = append(seqs, &sequenceState{def: d})
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0

	for sc.Scan() {
		lineNo++
		text := sc.Text()

		for _, d := range defs {
			if d.Hint != nil && !d.Hint.MatchString(text) {
				continue
			}

			switch {
			case d.Expr != nil:
				if m := d.Expr.FindStringSubmatch(text); m != nil {
					out.results = append(out.results, Result{Tag: d.Tag, Source: source, LineNo: lineNo, Groups: m})
				}
			case d.Passthrough:
				out.results = append(out.results, rawSequenceMatches(d, source, lineNo, text)...)
			}
		}

		for _, s := range seqs {
			if s.def.Hint != nil && !s.def.Hint.MatchString(text) {
				continue
			}

			s.line(source, lineNo, text)
		}
	}

	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scanning %s: %w", source, err)
	}

	for _, s := range seqs {
		if secs := s.finish(); len(secs) > 0 {
			out.sections[s.def.Tag] = secs
		}
	}

	return out, nil
}

// rawSequenceMatches returns every start/body/end match of a passthrough
// sequence definition on one line.
func rawSequenceMatches(d *Def, source string, lineNo int, text string) []Result {
	var out []Result

	for _, p := range []struct {
		suffix string
		re     *regexp.Regexp
	}{
		{SuffixStart, d.Start},
		{SuffixBody, d.Body},
		{SuffixEnd, d.End},
	} {
		if p.re == nil {
			continue
		}

		if m := p.re.FindStringSubmatch(text); m != nil {
			out = append(out, Result{Tag: d.Tag + p.suffix, Source: source, LineNo: lineNo, Groups: m})
		}
	}

	return out
}
