package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage onboarding tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskBlockCmd())
	task.AddCommand(taskUnblockCmd())
	task.AddCommand(taskReassignCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var (
		f        repo.TaskFilter
		statuses string
		owner    string
	)
	cmd := &cobra.Command{
		Use:   "list <onboarding-id>",
		Short: "List tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.OnboardingID = args[0]
			f.OwnerRole = domain.Role(owner)
			for _, s := range strings.Split(statuses, ",") {
				if s = strings.TrimSpace(s); s != "" {
					f.Statuses = append(f.Statuses, domain.TaskStatus(s))
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(tasks, e.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statuses, "status", "", "comma-separated status filter")
	cmd.Flags().StringVar(&owner, "owner-role", "", "owner role filter")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "exclude completed tasks")
	cmd.Flags().BoolVar(&f.BlockerOnly, "blockers", false, "only blockers")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var title, priority, notes string
	cmd := &cobra.Command{
		Use:   "add <onboarding-id> <task-type>",
		Short: "Add a task; owner, assignee and due date come from the rules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskInput{
					OnboardingID: args[0],
					TaskType:     args[1],
					Title:        title,
					Priority:     domain.Priority(priority),
					Origin:       cliOrigin(cmd, notes),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title (defaults from the task type)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority override (low, medium, high, critical)")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and its escalation verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := e.EvaluateTask(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": t, "escalation": res})
				}
				printTasks([]domain.Task{t}, e.Now())
				fmt.Println(res.Reason)
				return nil
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	var force bool
	var notes string
	cmd := &cobra.Command{
		Use:   "status <task-id> <pending|in_progress|completed|blocked>",
		Short: "Move a task through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.UpdateTaskStatus(ctx, args[0], domain.TaskStatus(args[1]), force, cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "allow transitions outside the normal lifecycle")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func taskBlockCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "block <task-id> <reason>",
		Short: "Flag a task as a blocker and escalate it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := strings.Join(args[1:], " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				out, err := e.SetBlocker(ctx, args[0], reason, cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Task %s blocked: %s\n", out.Task.ID, out.Task.BlockerReason)
				switch {
				case out.Duplicate:
					fmt.Println("Already escalated today; no new notification.")
				case out.Notification != nil:
					fmt.Printf("Escalated %s to %s: %s\n", urgencyText(out.Escalation.UrgencyLevel), contactList(out.Escalation.Recipients), deliveryText(out.Notification))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func taskUnblockCmd() *cobra.Command {
	var resolution, status, notes string
	cmd := &cobra.Command{
		Use:   "unblock <task-id>",
		Short: "Resolve a blocker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				out, err := e.ResolveBlocker(ctx, args[0], engine.ResolveBlockerInput{
					Resolution: resolution,
					Status:     domain.TaskStatus(status),
					Origin:     cliOrigin(cmd, notes),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "how the blocker was resolved")
	cmd.Flags().StringVar(&status, "status", "in_progress", "status after resolution (pending, in_progress)")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func taskReassignCmd() *cobra.Command {
	var to, notes string
	cmd := &cobra.Command{
		Use:   "reassign <task-id>",
		Short: "Reassign a task (omit --to to re-run rule-based assignment)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ReassignTask(ctx, args[0], to, cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "stakeholder id")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}
