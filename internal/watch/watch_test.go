package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestShouldIgnoreWatchPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{name: "/repo/.git/index.lock", want: true},
		{name: "/repo/.git/HEAD.lock", want: true},
		{name: "/repo/.git/index", want: true},
		{name: "/repo/.git/WILY_CHECKOUT", want: true},
		{name: "/repo/.git/HEAD", want: false},
		{name: "/repo/.git/refs/heads/main", want: false},
	}
	for _, tt := range tests {
		if got := shouldIgnoreWatchPath(tt.name); got != tt.want {
			t.Fatalf("shouldIgnoreWatchPath(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWatchPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if got := slices.Collect(watchPaths(root)); !slices.Equal(got, []string{root}) {
		t.Fatalf("watchPaths without .git = %v", got)
	}
	heads := filepath.Join(root, ".git", "refs", "heads")
	if err := os.MkdirAll(heads, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	got := slices.Sorted(watchPaths(root))
	want := []string{filepath.Join(root, ".git"), heads}
	if !slices.Equal(got, want) {
		t.Fatalf("watchPaths = %v, want %v", got, want)
	}
}

func TestRunCallsOnChange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	heads := filepath.Join(root, ".git", "refs", "heads")
	if err := os.MkdirAll(heads, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	called := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, root, 10*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			select {
			case called <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// keep touching the ref until the watcher is set up and reacts
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for waiting := true; waiting; {
		select {
		case <-called:
			waiting = false
		case <-tick.C:
			if err := os.WriteFile(filepath.Join(heads, "main"), []byte(time.Now().String()), 0o644); err != nil {
				t.Fatalf("write ref: %v", err)
			}
		case <-deadline:
			t.Fatal("onChange never ran")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if calls.Load() == 0 {
		t.Fatal("no calls recorded")
	}
}
