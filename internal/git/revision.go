package git

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Revision describes one commit together with the files it tracks and the
// change sets relative to its first parent. Values are built once per commit
// and never modified afterwards; every slice is owned by the Revision.
type Revision struct {
	Key         string    `json:"key"`
	Parent      string    `json:"parent,omitempty"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Date        time.Time `json:"date"`
	Message     string    `json:"message"`

	TrackedFiles []string `json:"tracked_files"`
	TrackedDirs  []string `json:"tracked_dirs"`

	AddedFiles    []string `json:"added_files"`
	ModifiedFiles []string `json:"modified_files"`
	DeletedFiles  []string `json:"deleted_files"`
}

// ShortKey returns the abbreviated hash used in log lines and tables.
func (r Revision) ShortKey() string {
	if len(r.Key) > 7 {
		return r.Key[:7]
	}
	return r.Key
}

// Summary returns "<short hash>  <date>  <subject>" for one-line listings.
func (r Revision) Summary() string {
	firstLine := strings.SplitN(strings.TrimSpace(r.Message), "\n", 2)[0]
	if len(firstLine) > 80 {
		firstLine = firstLine[:77] + "..."
	}
	return fmt.Sprintf("%s  %s  %s", r.ShortKey(), r.Date.Format("2006-01-02 15:04"), firstLine)
}

// Changed returns the added and modified files, sorted.
func (r Revision) Changed() []string {
	out := make([]string, 0, len(r.AddedFiles)+len(r.ModifiedFiles))
	out = append(out, r.AddedFiles...)
	out = append(out, r.ModifiedFiles...)
	slices.Sort(out)
	return out
}

// IsRoot reports whether the revision has no parent.
func (r Revision) IsRoot() bool {
	return r.Parent == ""
}
