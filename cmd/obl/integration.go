package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
)

func integrationCmd() *cobra.Command {
	integ := &cobra.Command{Use: "integration", Short: "Configure and validate integrations"}
	integ.AddCommand(integrationListCmd())
	integ.AddCommand(integrationAddCmd())
	integ.AddCommand(integrationConfigureCmd())
	integ.AddCommand(integrationTestCmd())
	integ.AddCommand(integrationReportCmd())
	integ.AddCommand(integrationInstructionsCmd())
	return integ
}

func integrationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <onboarding-id>",
		Short: "List integrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListIntegrations(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printIntegrations(items)
				return nil
			})
		},
	}
}

func integrationAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <onboarding-id> <type> <name>",
		Short: "Add an integration and its setup task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				integ, err := e.AddIntegration(ctx, args[0], engine.IntegrationInput{Type: args[1], Name: args[2]}, cliOrigin(cmd, ""))
				if err != nil {
					return err
				}
				return printJSONOrTable(integ)
			})
		},
	}
}

func integrationConfigureCmd() *cobra.Command {
	var (
		file  string
		sets  []string
		merge bool
		notes string
	)
	cmd := &cobra.Command{
		Use:   "configure <integration-id>",
		Short: "Set integration configuration from key=value pairs or a YAML/JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := map[string]any{}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return fmt.Errorf("invalid configuration file: %w", err)
				}
			}
			for _, kv := range sets {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--set %q must be key=value", kv)
				}
				var decoded any
				if err := json.Unmarshal([]byte(v), &decoded); err == nil {
					cfg[k] = decoded
				} else {
					cfg[k] = v
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				integ, err := e.ConfigureIntegration(ctx, args[0], cfg, merge, cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				return printJSONOrTable(integ)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "configuration file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "key=value (repeatable; JSON values are decoded)")
	cmd.Flags().BoolVar(&merge, "merge", true, "merge into the existing configuration instead of replacing it")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func integrationTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <integration-id>",
		Short: "Validate an integration and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				out, err := e.TestIntegration(ctx, args[0], engine.Origin{Source: engine.SourceValidator, Trigger: cmd.CommandPath()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				printValidation(out)
				return nil
			})
		},
	}
}

func integrationReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <onboarding-id>",
		Short: "Print the integration status report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if viper.GetBool("json") {
					p, err := e.IntegrationProgress(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(p)
				}
				report, err := e.IntegrationReport(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Print(report)
				return nil
			})
		},
	}
}

func integrationInstructionsCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "instructions <type>",
		Short: "Show setup instructions for an integration type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				set := e.Instructions(args[0], r)
				if viper.GetBool("json") {
					return printJSON(set)
				}
				printInstructions(set)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleITContact), "stakeholder role")
	return cmd
}
