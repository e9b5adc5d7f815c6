// Package operator defines the metric collectors run against a checked-out
// revision and the built-in ones.
package operator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

// ErrUnknown is returned by Resolve for names with no registered operator.
var ErrUnknown = errors.New("unknown operator")

// ErrBinary is recorded for files that are not UTF-8 text.
var ErrBinary = errors.New("binary file")

// Metric describes one value an operator reports per file.
type Metric struct {
	Name        string
	Description string
	// Aggregate combines file values into directory totals.
	Aggregate Aggregate
}

// Target is what an operator measures: a set of files inside the working
// tree materialized for Revision.
type Target struct {
	FS       billy.Filesystem
	Revision git.Revision
	Files    []string
	// Previous returns the content of path in the parent revision and false
	// when the file did not exist there. It may be nil.
	Previous func(path string) (string, bool, error)
}

// ReadFile reads a target file from the working tree.
func (t Target) ReadFile(path string) ([]byte, error) {
	return util.ReadFile(t.FS, path)
}

func (t Target) previous(path string) (string, bool, error) {
	if t.Previous == nil {
		return "", false, nil
	}
	return t.Previous(path)
}

// Result holds the data of every file measured and the error of every file
// that could not be.
type Result struct {
	Files  map[string]cache.FileData
	Failed map[string]error
}

func newResult() Result {
	return Result{Files: map[string]cache.FileData{}, Failed: map[string]error{}}
}

// Operator collects metrics for the files of a Target. A failure on a single
// file goes to Result.Failed; a returned error aborts the revision.
type Operator interface {
	Name() string
	Description() string
	Metrics() []Metric
	Run(ctx context.Context, t Target) (Result, error)
}

var registry = map[string]Operator{}

func register(op Operator) {
	registry[op.Name()] = op
}

func init() {
	register(Raw{})
	register(Churn{})
}

// All returns every registered operator sorted by name.
func All() []Operator {
	ops := make([]Operator, 0, len(registry))
	for _, op := range registry {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, func(a, b Operator) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return ops
}

// Names returns the names of the given operators.
func Names(ops []Operator) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name())
	}
	return names
}

// Resolve maps operator names to operators, keeping their order and
// dropping duplicates. An empty list selects every operator.
func Resolve(names []string) ([]Operator, error) {
	if len(names) == 0 {
		return All(), nil
	}
	var ops []Operator
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		op, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknown)
		}
		seen[name] = true
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return All(), nil
	}
	return ops, nil
}
