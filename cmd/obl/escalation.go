package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/engine"
)

func escalationCmd() *cobra.Command {
	esc := &cobra.Command{Use: "escalation", Aliases: []string{"esc"}, Short: "Check and run escalations"}
	esc.AddCommand(escalationCheckCmd())
	esc.AddCommand(escalationRunCmd())
	esc.AddCommand(blockerRecipientsCmd())
	return esc
}

func escalationCheckCmd() *cobra.Command {
	var onboardingID string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "List tasks that would escalate now, without notifying anyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.CheckEscalations(ctx, onboardingID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printCandidates(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&onboardingID, "onboarding", "", "limit to one onboarding")
	return cmd
}

func escalationRunCmd() *cobra.Command {
	var onboardingID, notes string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Escalate overdue tasks and notify the escalation chain",
		Long: `Evaluates every open task in active onboardings. A task escalates at most once per
local day, so the command is safe to run from cron as often as needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.RunEscalationCheck(ctx, onboardingID, cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				printEscalationReport(report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&onboardingID, "onboarding", "", "limit to one onboarding")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func blockerRecipientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipients <task-id>",
		Short: "Show who a blocker on this task escalates to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.BlockerRecipients(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s -> %s\n", urgencyText(res.UrgencyLevel), contactList(res.Recipients))
				return nil
			})
		},
	}
}

func remindersCmd() *cobra.Command {
	var onboardingID string
	var days int
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Remind assignees of tasks due soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.SendReminders(ctx, onboardingID, days, cliOrigin(cmd, ""))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Checked %d, sent %d, skipped %d, failed %d\n", report.Checked, report.Sent, report.Skipped, report.Failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&onboardingID, "onboarding", "", "limit to one onboarding")
	cmd.Flags().IntVar(&days, "days", 0, "look-ahead window in days (default escalation.reminder_days)")
	return cmd
}
