package control

import (
	"sync"
	"testing"

	"github.com/foxzi/campaignctl/internal/campaign"
)

func TestGatePerAction(t *testing.T) {
	var g Gate

	if !g.TryAcquire(campaign.ActionPause) {
		t.Fatal("first pause acquire failed")
	}
	if g.TryAcquire(campaign.ActionPause) {
		t.Error("second pause acquire succeeded")
	}
	if !g.TryAcquire(campaign.ActionStop) {
		t.Error("stop blocked by pause in flight")
	}

	want := GateState{Pausing: true, Stopping: true}
	if got := g.State(); got != want {
		t.Errorf("State() = %+v, want %+v", got, want)
	}

	g.Release(campaign.ActionPause)
	if g.InFlight(campaign.ActionPause) {
		t.Error("pause still in flight after release")
	}
	if !g.TryAcquire(campaign.ActionPause) {
		t.Error("pause acquire after release failed")
	}
}

func TestGateUnknownAction(t *testing.T) {
	var g Gate
	if g.TryAcquire("cancel") {
		t.Error("unknown action acquired")
	}
	g.Release("cancel")
	if g.InFlight("cancel") {
		t.Error("unknown action in flight")
	}
}

func TestGateConcurrentAcquire(t *testing.T) {
	var g Gate
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(campaign.ActionResume) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Errorf("acquired %d times, want 1", acquired)
	}
}
