package sched

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hermit-os/kernel-go/internal/percore"
)

// TestMultiCoreBringupConcurrently is the Go analogue of releasing a batch
// of APs with INIT-SIPI-SIPI (x86_64) or PSCI CPU_ON (AArch64) and joining
// on each one's "online" flag: every core is brought up by its own
// goroutine concurrently, and errgroup.Group collects the first bring-up
// failure instead of the caller hand-rolling a WaitGroup plus an error
// channel.
func TestMultiCoreBringupConcurrently(t *testing.T) {
	const cores = 4

	g, ctx := errgroup.WithContext(context.Background())
	online := make(chan int, cores)

	for id := 1; id <= cores; id++ {
		coreID := id
		g.Go(func() error {
			percore.BindAP(coreID)
			entry, ch := newIdleEntry()
			s := NewPerCoreScheduler(coreID, entry)
			ch <- s

			done := make(chan struct{})
			if _, err := s.Spawn(func(arg any) {
				online <- coreID
				close(done)
			}, nil, PriorityNormal, coreID); err != nil {
				return fmt.Errorf("core %d: spawn bring-up task: %w", coreID, err)
			}

			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return fmt.Errorf("core %d never came online", coreID)
			}
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("multi-core bring-up: %v", err)
	}

	close(online)
	seen := map[int]bool{}
	for coreID := range online {
		seen[coreID] = true
	}
	if len(seen) != cores {
		t.Fatalf("cores that came online = %v, want %d distinct cores", seen, cores)
	}
}
