package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/thiagokokada/wily-go/internal/cache"
)

// Churn counts the lines each revision added to and removed from a file
// compared with the parent revision.
type Churn struct{}

func (Churn) Name() string { return "churn" }

func (Churn) Description() string { return "Lines added and removed by the revision" }

func (Churn) Metrics() []Metric {
	return []Metric{
		{Name: "lines_added", Description: "Lines added", Aggregate: Sum},
		{Name: "lines_removed", Description: "Lines removed", Aggregate: Sum},
	}
}

func (c Churn) Run(ctx context.Context, t Target) (Result, error) {
	res := newResult()
	for _, path := range t.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := t.ReadFile(path)
		if err != nil {
			res.Failed[path] = err
			continue
		}
		if !isText(data) {
			res.Failed[path] = ErrBinary
			continue
		}
		before, _, err := t.previous(path)
		if err != nil {
			res.Failed[path] = fmt.Errorf("read parent version: %w", err)
			continue
		}
		added, removed := lineChurn(before, string(data))
		res.Files[path] = cache.FileData{
			Detailed: map[string]cache.Metrics{},
			Total:    cache.Metrics{"lines_added": float64(added), "lines_removed": float64(removed)},
		}
	}
	return res, nil
}

// lineChurn returns how many lines were inserted and deleted going from a
// to b. A replaced line counts once on each side.
func lineChurn(a, b string) (added, removed int) {
	m := difflib.NewMatcherWithJunk(splitLines(a), splitLines(b), false, nil)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed += op.I2 - op.I1
			added += op.J2 - op.J1
		case 'd':
			removed += op.I2 - op.I1
		case 'i':
			added += op.J2 - op.J1
		}
	}
	return added, removed
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
