package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/transport"
)

type fakeCommander struct {
	mu      sync.Mutex
	calls   map[campaign.Action]int
	sent    []*transport.ControlRequest
	replies map[campaign.Action]chan error
	started chan campaign.Action
	noToken bool
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		calls:   make(map[campaign.Action]int),
		replies: make(map[campaign.Action]chan error),
		started: make(chan campaign.Action, 8),
	}
}

// hold makes Control for action block until a reply is sent on the returned channel
func (f *fakeCommander) hold(action campaign.Action) chan error {
	ch := make(chan error, 1)
	f.mu.Lock()
	f.replies[action] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeCommander) NewControlRequest(ctx context.Context, campaignID string, action campaign.Action, delay campaign.DelayRange) (*transport.ControlRequest, error) {
	if f.noToken {
		return nil, &transport.Error{Kind: transport.KindUnauthenticated, Op: "control " + string(action)}
	}
	req := &transport.ControlRequest{CampaignID: campaignID, Action: action, RequestID: "req-" + string(action)}
	if action == campaign.ActionResume {
		d := delay
		req.Delay = &d
	}
	return req, nil
}

func (f *fakeCommander) Control(ctx context.Context, req *transport.ControlRequest) error {
	f.mu.Lock()
	f.calls[req.Action]++
	f.sent = append(f.sent, req)
	ch := f.replies[req.Action]
	f.mu.Unlock()

	f.started <- req.Action
	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCommander) callCount(action campaign.Action) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

type fakeHost struct {
	mu           sync.Mutex
	notReady     error
	closed       bool
	delay        campaign.DelayRange
	acked        []campaign.DelayRange
	unauthorized int
}

func (h *fakeHost) CampaignID() string { return "c1" }

func (h *fakeHost) Ready() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return h.notReady
}

func (h *fakeHost) Open() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

func (h *fakeHost) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHost) Delay() campaign.DelayRange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delay
}

func (h *fakeHost) setDelay(d campaign.DelayRange) {
	h.mu.Lock()
	h.delay = d
	h.mu.Unlock()
}

func (h *fakeHost) DelayAcknowledged(d campaign.DelayRange) {
	h.mu.Lock()
	h.acked = append(h.acked, d)
	h.mu.Unlock()
}

func (h *fakeHost) Unauthorized(ctx context.Context, err error) {
	h.mu.Lock()
	h.unauthorized++
	h.mu.Unlock()
}

type fixture struct {
	host      *fakeHost
	commander *fakeCommander
	machine   *Machine
	gate      *Gate
	ctrl      *Controller
}

func newFixture(initial campaign.State) *fixture {
	f := &fixture{
		host:      &fakeHost{},
		commander: newFakeCommander(),
		machine:   NewMachine(initial),
		gate:      &Gate{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ctrl = NewController(f.host, f.gate, f.machine, f.commander, events.NewBroker(), logger)
	return f
}

// dispatchAsync runs Dispatch in the background and waits until the command
// reaches the commander
func (f *fixture) dispatchAsync(t *testing.T, action campaign.Action) <-chan Outcome {
	t.Helper()
	out := make(chan Outcome, 1)
	go func() {
		out <- f.ctrl.Dispatch(context.Background(), action)
	}()
	select {
	case got := <-f.commander.started:
		if got != action {
			t.Fatalf("commander started %q, want %q", got, action)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never reached the commander", action)
	}
	return out
}

func wait(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not finish")
	}
	return Outcome{}
}

func rejected(msg string) error {
	return &transport.Error{Kind: transport.KindRejected, Op: "control", Message: msg}
}

func TestDispatchConfirmed(t *testing.T) {
	f := newFixture(processing)

	o := f.ctrl.Dispatch(context.Background(), campaign.ActionPause)
	<-f.commander.started

	if !o.OK() || o.Result != ResultConfirmed {
		t.Fatalf("outcome = %+v", o)
	}
	if o.State != paused || f.machine.State() != paused {
		t.Errorf("state = %q, want paused", f.machine.State())
	}
	if f.gate.InFlight(campaign.ActionPause) {
		t.Error("gate not released")
	}
}

func TestDuplicateDispatchIgnored(t *testing.T) {
	f := newFixture(processing)
	reply := f.commander.hold(campaign.ActionPause)

	first := f.dispatchAsync(t, campaign.ActionPause)

	second := f.ctrl.Dispatch(context.Background(), campaign.ActionPause)
	if second.Result != ResultIgnored {
		t.Errorf("second dispatch result = %q, want ignored", second.Result)
	}

	reply <- nil
	if o := wait(t, first); o.Result != ResultConfirmed {
		t.Errorf("first dispatch result = %q, want confirmed", o.Result)
	}
	if n := f.commander.callCount(campaign.ActionPause); n != 1 {
		t.Errorf("pause sent %d times, want 1", n)
	}
}

func TestRejectedPauseRollsBack(t *testing.T) {
	f := newFixture(processing)
	reply := f.commander.hold(campaign.ActionPause)

	out := f.dispatchAsync(t, campaign.ActionPause)
	if f.machine.State() != paused {
		t.Errorf("optimistic state = %q, want paused", f.machine.State())
	}

	reply <- rejected("campaign busy")
	o := wait(t, out)
	if o.Result != ResultRolledBack {
		t.Fatalf("result = %q, want rolled_back", o.Result)
	}
	if transport.KindOf(o.Err) != transport.KindRejected {
		t.Errorf("error kind = %q", transport.KindOf(o.Err))
	}
	if f.machine.State() != processing {
		t.Errorf("state = %q, want processing", f.machine.State())
	}
	if f.gate.InFlight(campaign.ActionPause) {
		t.Fatal("pause gate still held after rollback")
	}

	// a later pause is accepted again
	f.commander.mu.Lock()
	delete(f.commander.replies, campaign.ActionPause)
	f.commander.mu.Unlock()

	o = f.ctrl.Dispatch(context.Background(), campaign.ActionPause)
	<-f.commander.started
	if o.Result != ResultConfirmed || f.machine.State() != paused {
		t.Errorf("retry outcome = %+v, state %q", o, f.machine.State())
	}
}

func TestStopWhileResumeInFlight(t *testing.T) {
	tests := []struct {
		name        string
		resumeReply error
	}{
		{"resume confirmed late", nil},
		{"resume rejected late", rejected("too late")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(paused)
			resumeReply := f.commander.hold(campaign.ActionResume)
			stopReply := f.commander.hold(campaign.ActionStop)

			resume := f.dispatchAsync(t, campaign.ActionResume)
			stop := f.dispatchAsync(t, campaign.ActionStop)

			stopReply <- nil
			if o := wait(t, stop); o.Result != ResultConfirmed {
				t.Fatalf("stop result = %q", o.Result)
			}

			resumeReply <- tt.resumeReply
			o := wait(t, resume)
			if o.State != stopped {
				t.Errorf("resume outcome state = %q, want stopped", o.State)
			}
			if f.machine.State() != stopped {
				t.Errorf("state = %q, want stopped", f.machine.State())
			}
		})
	}
}

func TestDispatchPreconditions(t *testing.T) {
	tests := []struct {
		name       string
		initial    campaign.State
		action     campaign.Action
		setup      func(f *fixture)
		wantResult Result
		wantErr    error
	}{
		{
			name:       "not loaded",
			initial:    "",
			action:     campaign.ActionPause,
			setup:      func(f *fixture) { f.host.notReady = ErrNotLoaded },
			wantResult: ResultRejected,
			wantErr:    ErrNotLoaded,
		},
		{
			name:       "closed",
			initial:    processing,
			action:     campaign.ActionStop,
			setup:      func(f *fixture) { f.host.close() },
			wantResult: ResultRejected,
			wantErr:    ErrClosed,
		},
		{
			name:       "missing credential",
			initial:    processing,
			action:     campaign.ActionPause,
			setup:      func(f *fixture) { f.commander.noToken = true },
			wantResult: ResultUnauthenticated,
			wantErr:    transport.ErrUnauthenticated,
		},
		{
			name:       "invalid transition",
			initial:    paused,
			action:     campaign.ActionPause,
			setup:      func(f *fixture) {},
			wantResult: ResultRejected,
			wantErr:    ErrInvalidTransition,
		},
		{
			name:       "terminal",
			initial:    campaign.StateCompleted,
			action:     campaign.ActionStop,
			setup:      func(f *fixture) {},
			wantResult: ResultRejected,
			wantErr:    ErrTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.initial)
			tt.setup(f)

			o := f.ctrl.Dispatch(context.Background(), tt.action)
			if o.Result != tt.wantResult {
				t.Errorf("result = %q, want %q", o.Result, tt.wantResult)
			}
			if !errors.Is(o.Err, tt.wantErr) {
				t.Errorf("error = %v, want %v", o.Err, tt.wantErr)
			}
			if f.machine.State() != tt.initial {
				t.Errorf("state changed to %q", f.machine.State())
			}
			if n := f.commander.callCount(tt.action); n != 0 {
				t.Errorf("command sent %d times", n)
			}
			if f.gate.InFlight(tt.action) {
				t.Error("gate not released")
			}
		})
	}
}

func TestUnauthorizedRollsBackAndNotifiesHost(t *testing.T) {
	f := newFixture(processing)
	reply := f.commander.hold(campaign.ActionStop)

	out := f.dispatchAsync(t, campaign.ActionStop)
	reply <- &transport.Error{Kind: transport.KindUnauthorized, Op: "control stop", Status: 401}

	o := wait(t, out)
	if o.Result != ResultUnauthorized {
		t.Errorf("result = %q, want unauthorized", o.Result)
	}
	if f.machine.State() != processing {
		t.Errorf("state = %q, want processing", f.machine.State())
	}
	if f.host.unauthorized != 1 {
		t.Errorf("host notified %d times, want 1", f.host.unauthorized)
	}
}

func TestResultDroppedAfterClose(t *testing.T) {
	f := newFixture(processing)
	reply := f.commander.hold(campaign.ActionPause)

	out := f.dispatchAsync(t, campaign.ActionPause)
	f.host.close()
	reply <- rejected("late")

	o := wait(t, out)
	if o.Result != ResultDropped {
		t.Errorf("result = %q, want dropped", o.Result)
	}
	if f.machine.Pending() != 1 {
		t.Errorf("pending = %d, dropped result must not resolve the transition", f.machine.Pending())
	}
}

func TestResumeAcknowledgesSentDelay(t *testing.T) {
	f := newFixture(paused)
	sent := campaign.DelayRange{Start: 1, End: 2}
	f.host.setDelay(sent)
	reply := f.commander.hold(campaign.ActionResume)

	out := f.dispatchAsync(t, campaign.ActionResume)

	// edited while in flight: the request keeps the old value
	f.host.setDelay(campaign.DelayRange{Start: 5, End: 6})
	reply <- nil
	wait(t, out)

	f.commander.mu.Lock()
	req := f.commander.sent[0]
	f.commander.mu.Unlock()
	if req.Delay == nil || *req.Delay != sent {
		t.Errorf("sent delay = %v, want %v", req.Delay, sent)
	}
	if len(f.host.acked) != 1 || f.host.acked[0] != sent {
		t.Errorf("acked = %v, want [%v]", f.host.acked, sent)
	}
}

func TestPauseDoesNotCarryDelay(t *testing.T) {
	f := newFixture(processing)
	f.host.setDelay(campaign.DelayRange{Start: 3, End: 4})

	f.ctrl.Dispatch(context.Background(), campaign.ActionPause)
	<-f.commander.started

	if f.commander.sent[0].Delay != nil {
		t.Errorf("pause carried delay %v", f.commander.sent[0].Delay)
	}
	if len(f.host.acked) != 0 {
		t.Error("pause acknowledged a delay")
	}
}

func TestDispatchPublishesEvents(t *testing.T) {
	f := newFixture(processing)
	sub := f.ctrl.broker.Subscribe(events.TypeTransition, events.TypeConfirmed)
	defer sub.Close()

	f.ctrl.Dispatch(context.Background(), campaign.ActionPause)
	<-f.commander.started

	for _, want := range []events.Type{events.TypeTransition, events.TypeConfirmed} {
		select {
		case ev := <-sub.C():
			if ev.Type != want || ev.CampaignID != "c1" || ev.Action != campaign.ActionPause {
				t.Errorf("event = %+v, want type %q", ev, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %q event", want)
		}
	}
}
