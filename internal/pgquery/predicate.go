package pgquery

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Predicate is a WHERE fragment with its bound values. Placeholders in the
// fragment are written $1-relative; Clause shifts them when the predicate
// is appended after other bound parameters.
type Predicate struct {
	text   string
	values []any
}

// NewPredicate validates and builds a predicate. The fragment must
// reference exactly $1..$n for the n values given: no gaps, no references
// past the value count, and at least one reference per value.
func NewPredicate(text string, values ...any) (*Predicate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("predicate text is empty")
	}

	refs := make(map[int]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid placeholder %q in predicate", m[0])
		}
		refs[n] = true
	}

	if len(refs) != len(values) {
		return nil, fmt.Errorf("predicate references %d distinct placeholders but %d values given", len(refs), len(values))
	}
	for n := 1; n <= len(values); n++ {
		if !refs[n] {
			missing := sortedRefs(refs)
			return nil, fmt.Errorf("predicate placeholders %v must be contiguous from $1 to $%d", missing, len(values))
		}
	}

	return &Predicate{text: text, values: values}, nil
}

// Text returns the fragment as written, $1-relative.
func (p *Predicate) Text() string {
	return p.text
}

// Clause returns the fragment with every placeholder shifted by offset,
// for appending after offset previously bound parameters.
func (p *Predicate) Clause(offset int) string {
	if offset == 0 {
		return p.text
	}
	return placeholderPattern.ReplaceAllStringFunc(p.text, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		return fmt.Sprintf("$%d", n+offset)
	})
}

// Values returns a copy of the bound values.
func (p *Predicate) Values() []any {
	out := make([]any, len(p.values))
	copy(out, p.values)
	return out
}

// Len returns the number of bound values.
func (p *Predicate) Len() int {
	return len(p.values)
}

func sortedRefs(refs map[int]bool) []string {
	ns := make([]int, 0, len(refs))
	for n := range refs {
		ns = append(ns, n)
	}
	sort.Ints(ns)

	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = "$" + strconv.Itoa(n)
	}
	return out
}
