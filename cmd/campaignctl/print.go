package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/reconcile"
	"github.com/foxzi/campaignctl/internal/session"
)

var statusColors = map[campaign.RecipientStatus]*color.Color{
	campaign.StatusPending:  color.New(color.Faint),
	campaign.StatusSent:     color.New(color.FgGreen),
	campaign.StatusFailed:   color.New(color.FgRed),
	campaign.StatusNotExist: color.New(color.FgYellow),
	campaign.StatusStopped:  color.New(color.FgHiBlack, color.Italic),
}

var stateColors = map[campaign.State]*color.Color{
	campaign.StateProcessing: color.New(color.FgGreen, color.Bold),
	campaign.StatePaused:     color.New(color.FgYellow, color.Bold),
	campaign.StateStopped:    color.New(color.FgRed, color.Bold),
	campaign.StateCompleted:  color.New(color.FgCyan, color.Bold),
	campaign.StateFailed:     color.New(color.FgRed, color.Bold),
}

func colorState(s campaign.State) string {
	if c, ok := stateColors[s]; ok {
		return c.Sprint(s)
	}
	return string(s)
}

func colorStatus(s campaign.RecipientStatus) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s)
	}
	return string(s)
}

func printView(w io.Writer, v *session.View) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Campaign"), v.Campaign.ID)
	tbl.AddRow(bold.Sprint("State"), colorState(v.Campaign.State))
	tbl.AddRow(bold.Sprint("Delay"), fmt.Sprintf("%d-%ds", v.Campaign.Delay.Start, v.Campaign.Delay.End))
	tbl.AddRow(bold.Sprint("Total"), v.Summary.Total)
	tbl.AddRow(bold.Sprint("Sent"), v.Summary.Sent)
	tbl.AddRow(bold.Sprint("Failed"), v.Summary.Failed)
	tbl.AddRow(bold.Sprint("Not exist"), v.Summary.NotExist)
	tbl.AddRow(bold.Sprint("Pending"), v.Summary.Pending)
	if v.Summary.Stopped > 0 {
		tbl.AddRow(bold.Sprint("Stopped"), v.Summary.Stopped)
	}
	tbl.RightAlign(0)

	_, _ = fmt.Fprintln(w, tbl)
}

func printRows(w io.Writer, rows []reconcile.Row) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow(bold.Sprint("#"), bold.Sprint("NAME"), bold.Sprint("PHONE"), bold.Sprint("STATUS"))
	for _, r := range rows {
		tbl.AddRow(strconv.Itoa(r.Index+1), r.Recipient.Name, r.Recipient.Phone, colorStatus(r.Status))
	}
	tbl.RightAlign(0)

	_, _ = fmt.Fprintln(w, tbl)
}

func printOutcome(w io.Writer, o control.Outcome) {
	result := string(o.Result)
	if o.Result == control.ResultConfirmed {
		result = color.GreenString(result)
	} else {
		result = color.RedString(result)
	}

	_, _ = fmt.Fprintf(w, "%s: %s (state %s)\n", o.Action, result, colorState(o.State))
	if o.Err != nil {
		_, _ = fmt.Fprintf(w, "  %s\n", o.Err)
	}
}
