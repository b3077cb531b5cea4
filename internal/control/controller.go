// Package control issues lifecycle commands against a running campaign and
// keeps the local view of its state consistent while responses are pending.
package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/metrics"
	"github.com/foxzi/campaignctl/internal/transport"
)

var (
	// ErrNotLoaded is returned when no snapshot has been loaded yet
	ErrNotLoaded = errors.New("campaign not loaded")
	// ErrClosed is returned once the campaign view has been closed
	ErrClosed = errors.New("campaign view closed")
	// ErrHalted is returned after the server rejected the credential
	ErrHalted = errors.New("campaign view halted after unauthorized response")
)

// Result classifies the outcome of a dispatch
type Result string

const (
	ResultConfirmed       Result = "confirmed"
	ResultRolledBack      Result = "rolled_back"
	ResultIgnored         Result = "ignored"
	ResultRejected        Result = "rejected"
	ResultUnauthenticated Result = "unauthenticated"
	ResultUnauthorized    Result = "unauthorized"
	ResultDropped         Result = "dropped"
)

// Outcome is the result of Dispatch. Errors are reported here, never thrown.
type Outcome struct {
	Action campaign.Action `json:"action"`
	Result Result          `json:"result"`
	State  campaign.State  `json:"state"`
	Err    error           `json:"-"`
}

// OK reports whether the server accepted the command
func (o Outcome) OK() bool {
	return o.Result == ResultConfirmed
}

// Commander sends control commands to the server
type Commander interface {
	NewControlRequest(ctx context.Context, campaignID string, action campaign.Action, delay campaign.DelayRange) (*transport.ControlRequest, error)
	Control(ctx context.Context, req *transport.ControlRequest) error
}

// Host is the open campaign view the controller acts on
type Host interface {
	CampaignID() string
	// Ready returns ErrClosed, ErrHalted or ErrNotLoaded when no command may be sent
	Ready() error
	// Open reports whether the view is still open
	Open() bool
	// Delay returns the locally held delay range
	Delay() campaign.DelayRange
	// DelayAcknowledged is called after the server accepted a resume carrying d
	DelayAcknowledged(d campaign.DelayRange)
	// Unauthorized is called when the server rejected the credential
	Unauthorized(ctx context.Context, err error)
}

// Controller wires the gate, the state machine and the transport together
type Controller struct {
	host      Host
	gate      *Gate
	machine   *Machine
	commander Commander
	broker    *events.Broker
	logger    *slog.Logger
}

// NewController creates a controller for one open campaign view
func NewController(host Host, gate *Gate, machine *Machine, commander Commander, broker *events.Broker, logger *slog.Logger) *Controller {
	return &Controller{
		host:      host,
		gate:      gate,
		machine:   machine,
		commander: commander,
		broker:    broker,
		logger:    logger.With("component", "controller", "campaign_id", host.CampaignID()),
	}
}

// Dispatch issues action. A second dispatch of the same action while the
// first is in flight is ignored without touching the network.
func (c *Controller) Dispatch(ctx context.Context, action campaign.Action) Outcome {
	if !c.gate.TryAcquire(action) {
		metrics.IncCommand(string(action), string(ResultIgnored))
		c.publish(events.TypeIgnored, action, nil, nil)
		c.logger.Debug("duplicate dispatch ignored", "action", action)
		return Outcome{Action: action, Result: ResultIgnored, State: c.machine.State()}
	}
	defer c.gate.Release(action)

	if err := c.host.Ready(); err != nil {
		return c.reject(action, ResultRejected, err)
	}

	// The request captures the delay before the machine changes anything.
	req, err := c.commander.NewControlRequest(ctx, c.host.CampaignID(), action, c.host.Delay())
	if err != nil {
		result := ResultRejected
		if errors.Is(err, transport.ErrUnauthenticated) {
			result = ResultUnauthenticated
		}
		return c.reject(action, result, err)
	}

	t, err := c.machine.Begin(action)
	if err != nil {
		return c.reject(action, ResultRejected, err)
	}
	c.publish(events.TypeTransition, action, t, nil)
	c.logger.Info("optimistic transition", "action", action, "from", t.From, "to", t.To, "request_id", req.RequestID)

	metrics.CommandStarted(string(action))
	start := time.Now()
	err = c.commander.Control(ctx, req)
	elapsed := time.Since(start).Seconds()

	if !c.host.Open() {
		metrics.CommandFinished(string(action), string(ResultDropped), elapsed)
		c.publish(events.TypeDropped, action, t, err)
		c.logger.Debug("result dropped after close", "action", action, "request_id", req.RequestID)
		return Outcome{Action: action, Result: ResultDropped, State: c.machine.State(), Err: ErrClosed}
	}

	if err == nil {
		c.machine.Confirm(t)
		if req.Delay != nil {
			c.host.DelayAcknowledged(*req.Delay)
		}
		metrics.CommandFinished(string(action), string(ResultConfirmed), elapsed)
		c.publish(events.TypeConfirmed, action, t, nil)
		c.logger.Info("command confirmed", "action", action, "state", c.machine.State(), "request_id", req.RequestID)
		return Outcome{Action: action, Result: ResultConfirmed, State: c.machine.State()}
	}

	if c.machine.Rollback(t) {
		metrics.IncRollbacks(string(action))
	}

	result := ResultRolledBack
	evType := events.TypeRolledBack
	if errors.Is(err, transport.ErrUnauthorized) {
		result = ResultUnauthorized
		evType = events.TypeUnauthorized
		c.host.Unauthorized(ctx, err)
	}

	metrics.CommandFinished(string(action), string(result), elapsed)
	c.publish(evType, action, t, err)
	c.logger.Warn("command failed",
		"action", action,
		"result", result,
		"state", c.machine.State(),
		"request_id", req.RequestID,
		"error", err,
	)
	return Outcome{Action: action, Result: result, State: c.machine.State(), Err: err}
}

func (c *Controller) reject(action campaign.Action, result Result, err error) Outcome {
	metrics.IncCommand(string(action), string(result))
	c.publish(events.TypeRejected, action, nil, err)
	c.logger.Warn("command not sent", "action", action, "result", result, "error", err)
	return Outcome{Action: action, Result: result, State: c.machine.State(), Err: err}
}

func (c *Controller) publish(typ events.Type, action campaign.Action, t *Transition, err error) {
	if c.broker == nil {
		return
	}
	ev := events.New(typ, c.host.CampaignID())
	ev.Action = action
	if t != nil {
		ev.From = t.From
		ev.To = t.To
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.broker.Publish(ev)
}
