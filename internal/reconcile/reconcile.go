// Package reconcile derives per-recipient delivery status from the aggregate
// counters reported by the server.
//
// The server only reports how many recipients were sent, failed or did not
// exist, never which ones. Counts are therefore assigned positionally from
// the front of the recipient list, in send order. Explicit per-recipient
// status hints from the server take precedence over the positional guess.
package reconcile

import (
	"github.com/foxzi/campaignctl/internal/campaign"
)

// Reconcile returns one status per recipient, in recipient order.
// It is pure: the same inputs always yield the same output.
func Reconcile(recipients []campaign.Recipient, counters campaign.Counters, state campaign.State) []campaign.RecipientStatus {
	out := make([]campaign.RecipientStatus, len(recipients))
	for i := range out {
		out[i] = campaign.StatusPending
	}

	next := 0
	consume := func(n int, status campaign.RecipientStatus) {
		for ; n > 0 && next < len(out); n-- {
			out[next] = status
			next++
		}
	}
	consume(counters.Sent, campaign.StatusSent)
	consume(counters.Failed, campaign.StatusFailed)
	consume(counters.NotExist, campaign.StatusNotExist)

	for i, r := range recipients {
		switch {
		case r.Status == campaign.StatusPending || !r.Status.Known():
		case r.Status == campaign.StatusStopped:
			// stopped only ever replaces pending
			if out[i] == campaign.StatusPending {
				out[i] = r.Status
			}
		default:
			out[i] = r.Status
		}
	}

	if state == campaign.StateStopped {
		for i, s := range out {
			if s == campaign.StatusPending {
				out[i] = campaign.StatusStopped
			}
		}
	}

	return out
}

// Summary counts reconciled statuses
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	NotExist int `json:"not_exist"`
	Stopped  int `json:"stopped"`
}

// Summarize counts statuses by kind
func Summarize(statuses []campaign.RecipientStatus) Summary {
	s := Summary{Total: len(statuses)}
	for _, st := range statuses {
		switch st {
		case campaign.StatusPending:
			s.Pending++
		case campaign.StatusSent:
			s.Sent++
		case campaign.StatusFailed:
			s.Failed++
		case campaign.StatusNotExist:
			s.NotExist++
		case campaign.StatusStopped:
			s.Stopped++
		}
	}
	return s
}

// Row is a recipient annotated with its reconciled status
type Row struct {
	Index     int                      `json:"index"`
	Recipient campaign.Recipient       `json:"recipient"`
	Status    campaign.RecipientStatus `json:"status"`
}

// Rows reconciles a campaign into table rows
func Rows(c *campaign.Campaign) []Row {
	if c == nil {
		return nil
	}
	statuses := Reconcile(c.Recipients, c.Counters, c.State)
	rows := make([]Row, len(statuses))
	for i, st := range statuses {
		rows[i] = Row{Index: i, Recipient: c.Recipients[i], Status: st}
	}
	return rows
}

// Filter keeps rows with the given status; an empty status keeps all rows
func Filter(rows []Row, status campaign.RecipientStatus) []Row {
	if status == "" {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
