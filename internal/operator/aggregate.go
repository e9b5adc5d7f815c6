package operator

import (
	"strings"

	"github.com/thiagokokada/wily-go/internal/cache"
)

// Aggregate names how file values roll up into a directory value.
type Aggregate string

const (
	Sum  Aggregate = "sum"
	Mean Aggregate = "mean"
	Max  Aggregate = "max"
)

// Apply combines values. It returns 0 for no values.
func (a Aggregate) Apply(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch a {
	case Mean:
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case Max:
		m := values[0]
		for _, v := range values[1:] {
			m = max(m, v)
		}
		return m
	default:
		var total float64
		for _, v := range values {
			total += v
		}
		return total
	}
}

// AggregateDirs computes, for every directory in dirs, the total of each
// metric over the files below it. The root directory is "". Directories with
// no measured file are left out.
func AggregateDirs(metrics []Metric, files map[string]cache.FileData, dirs []string) map[string]cache.FileData {
	out := make(map[string]cache.FileData, len(dirs))
	for _, dir := range dirs {
		prefix := ""
		if dir != "" {
			prefix = dir + "/"
		}
		values := map[string][]float64{}
		matched := false
		for path, data := range files {
			if !strings.HasPrefix(path, prefix) {
				continue
			}
			matched = true
			for _, m := range metrics {
				if v, ok := data.Total[m.Name]; ok {
					values[m.Name] = append(values[m.Name], v)
				}
			}
		}
		if !matched {
			continue
		}
		total := cache.Metrics{}
		for _, m := range metrics {
			total[m.Name] = m.Aggregate.Apply(values[m.Name])
		}
		out[dir] = cache.FileData{Detailed: map[string]cache.Metrics{}, Total: total}
	}
	return out
}
