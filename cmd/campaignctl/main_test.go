package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/reconcile"
	"github.com/foxzi/campaignctl/internal/session"
)

func init() {
	color.NoColor = true
}

func TestReadToken(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"with newline", "abc\n", "abc", false},
		{"without newline", "abc", "abc", false},
		{"trimmed", "  abc  \nrest\n", "abc", false},
		{"empty", "\n", "", true},
		{"eof", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readToken(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintView(t *testing.T) {
	var buf bytes.Buffer
	printView(&buf, &session.View{
		Campaign: &campaign.Campaign{ID: "c1", State: campaign.StatePaused, Delay: campaign.DelayRange{Start: 2, End: 5}},
		Summary:  reconcile.Summary{Total: 3, Sent: 1, Pending: 2},
	})

	out := buf.String()
	for _, want := range []string{"c1", "paused", "2-5s", "Pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Stopped") {
		t.Errorf("output lists stopped row for zero count:\n%s", out)
	}
}

func TestPrintRows(t *testing.T) {
	var buf bytes.Buffer
	printRows(&buf, []reconcile.Row{
		{Index: 0, Recipient: campaign.Recipient{Name: "Ann", Phone: "100"}, Status: campaign.StatusSent},
		{Index: 1, Recipient: campaign.Recipient{Name: "Bob", Phone: "200"}, Status: campaign.StatusPending},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "Ann") || !strings.Contains(lines[1], "sent") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Bob") || !strings.Contains(lines[2], "pending") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, control.Outcome{
		Action: campaign.ActionPause,
		Result: control.ResultRolledBack,
		State:  campaign.StateProcessing,
		Err:    errors.New("busy"),
	})

	out := buf.String()
	if !strings.Contains(out, "pause: rolled_back (state processing)") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "busy") {
		t.Errorf("output missing error: %q", out)
	}
}

func TestOutcomeErr(t *testing.T) {
	if err := outcomeErr(control.Outcome{Err: control.ErrTerminal}); !errors.Is(err, control.ErrTerminal) {
		t.Errorf("outcomeErr() = %v", err)
	}
	if err := outcomeErr(control.Outcome{Result: control.ResultIgnored}); err == nil {
		t.Error("outcomeErr() = nil for ignored outcome")
	}
}
