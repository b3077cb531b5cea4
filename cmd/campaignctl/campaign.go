package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/session"
)

var (
	recipientsStatus string
	resumeDelayStart int
	resumeDelayEnd   int
)

var statusCmd = &cobra.Command{
	Use:   "status <campaign_id>",
	Short: "Show campaign state and delivery summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var recipientsCmd = &cobra.Command{
	Use:   "recipients <campaign_id>",
	Short: "List recipients with reconciled delivery status",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipients,
}

var pauseCmd = &cobra.Command{
	Use:   "pause <campaign_id>",
	Short: "Pause a processing campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args[0], campaign.ActionPause)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <campaign_id>",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args[0], campaign.ActionResume)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <campaign_id>",
	Short: "Stop a campaign for good",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, args[0], campaign.ActionStop)
	},
}

func init() {
	recipientsCmd.Flags().StringVar(&recipientsStatus, "status", "", "Filter by status (pending, sent, failed, not_exist, stopped)")
	resumeCmd.Flags().IntVar(&resumeDelayStart, "delay-start", 0, "Minimum delay between messages in seconds")
	resumeCmd.Flags().IntVar(&resumeDelayEnd, "delay-end", 0, "Maximum delay between messages in seconds")

	rootCmd.AddCommand(statusCmd, recipientsCmd, pauseCmd, resumeCmd, stopCmd)
}

// withSession opens and loads one campaign for a one-shot command
func withSession(ctx context.Context, id string, fn func(*session.Session) error) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	s, err := application.Sessions().Open(id)
	if err != nil {
		return err
	}
	if _, err := s.Load(ctx, false); err != nil {
		return err
	}
	return fn(s)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), args[0], func(s *session.Session) error {
		view, err := s.Snapshot()
		if err != nil {
			return err
		}
		printView(color.Output, view)
		return nil
	})
}

func runRecipients(cmd *cobra.Command, args []string) error {
	status := campaign.RecipientStatus(recipientsStatus)
	if status != "" && !status.Known() {
		return fmt.Errorf("unknown recipient status: %s", status)
	}

	return withSession(cmd.Context(), args[0], func(s *session.Session) error {
		rows, err := s.Rows(status)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No recipients")
			return nil
		}
		printRows(color.Output, rows)
		return nil
	})
}

func runCommand(cmd *cobra.Command, id string, action campaign.Action) error {
	return withSession(cmd.Context(), id, func(s *session.Session) error {
		if action == campaign.ActionResume && (cmd.Flags().Changed("delay-start") || cmd.Flags().Changed("delay-end")) {
			if err := s.SetDelay(campaign.DelayRange{Start: resumeDelayStart, End: resumeDelayEnd}); err != nil {
				return err
			}
		}

		outcome := s.Dispatch(cmd.Context(), action)
		printOutcome(color.Output, outcome)
		if outcome.Result != control.ResultConfirmed {
			return fmt.Errorf("%s %s: %w", action, outcome.Result, outcomeErr(outcome))
		}
		return nil
	})
}

func outcomeErr(o control.Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	return fmt.Errorf("command not confirmed")
}
