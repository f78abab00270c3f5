package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/app"
	"onboardline/internal/audit"
	"onboardline/internal/domain"
)

type auditFlags struct {
	entityType, entityID, eventType, onboardingID, source string
	from, to, filter                                      string
}

func (f *auditFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.entityType, "entity-type", "", "entity type filter")
	cmd.Flags().StringVar(&f.entityID, "entity-id", "", "entity id filter")
	cmd.Flags().StringVar(&f.eventType, "event", "", "event type filter")
	cmd.Flags().StringVar(&f.onboardingID, "onboarding", "", "onboarding filter")
	cmd.Flags().StringVar(&f.source, "source", "", "source filter (api, cli, escalation_engine, ...)")
	cmd.Flags().StringVar(&f.from, "from", "", "start date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "end date, inclusive (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.filter, "filter", "", `AIP-160 filter, e.g. 'event_type = "task_escalated"'`)
}

func (f *auditFlags) query(loc *time.Location) (audit.Query, error) {
	q := audit.Query{
		EntityType:   domain.EntityType(f.entityType),
		EntityID:     f.entityID,
		EventType:    domain.EventType(f.eventType),
		OnboardingID: f.onboardingID,
		Source:       f.source,
		Filter:       f.filter,
	}
	from, err := parseDay(f.from, loc)
	if err != nil {
		return q, fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(f.to, loc)
	if err != nil {
		return q, fmt.Errorf("--to: %w", err)
	}
	if to != nil && len(f.to) == len("2006-01-02") {
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	q.From, q.To = from, to
	return q, nil
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Query, summarize and export the audit ledger"}
	a.AddCommand(auditQueryCmd())
	a.AddCommand(auditTrailCmd())
	a.AddCommand(auditSummaryCmd())
	a.AddCommand(auditExportCmd())
	return a
}

func auditQueryCmd() *cobra.Command {
	var f auditFlags
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List audit records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := f.query(a.Config.Location())
				if err != nil {
					return err
				}
				q.Limit, q.Offset = limit, offset
				recs, err := a.Engine.QueryAudit(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				printAuditRecords(recs)
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultLimit, "max records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	return cmd
}

func auditTrailCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "trail <onboarding-id>",
		Short: "Every audit record scoped to an onboarding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recs, err := a.Engine.OnboardingAuditTrail(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				printAuditRecords(recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultLimit, "max records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	return cmd
}

func auditSummaryCmd() *cobra.Command {
	var f auditFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate counts over matching records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := f.query(a.Config.Location())
				if err != nil {
					return err
				}
				sum, err := a.Engine.AuditSummary(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				printAuditSummary(sum)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func auditExportCmd() *cobra.Command {
	var f auditFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write matching records to the configured archive as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				q, err := f.query(a.Config.Location())
				if err != nil {
					return err
				}
				store, err := a.Archive(ctx)
				if err != nil {
					return err
				}
				out, err := a.Engine.ExportAudit(ctx, store, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Exported %d records to %s\n", out.Records, out.Path)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}
