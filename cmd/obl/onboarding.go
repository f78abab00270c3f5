package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
)

// intakeFile is the YAML form of an onboarding intake.
type intakeFile struct {
	Customer struct {
		Name         string `yaml:"name"`
		Size         string `yaml:"size"`
		ContactEmail string `yaml:"contact_email"`
	} `yaml:"customer"`
	GoLiveDate   string `yaml:"go_live_date"`
	Stakeholders []struct {
		Role             string   `yaml:"role"`
		Name             string   `yaml:"name"`
		Email            string   `yaml:"email"`
		Phone            string   `yaml:"phone"`
		Responsibilities []string `yaml:"responsibilities"`
	} `yaml:"stakeholders"`
	Integrations []struct {
		Name          string         `yaml:"name"`
		Type          string         `yaml:"type"`
		Configuration map[string]any `yaml:"configuration"`
	} `yaml:"integrations"`
}

func (f intakeFile) input(loc *time.Location) (engine.OnboardingInput, error) {
	in := engine.OnboardingInput{
		Customer: engine.CustomerInput{
			Name:         f.Customer.Name,
			Size:         domain.CustomerSize(f.Customer.Size),
			ContactEmail: f.Customer.ContactEmail,
		},
	}
	goLive, err := parseDay(f.GoLiveDate, loc)
	if err != nil {
		return in, fmt.Errorf("go_live_date: %w", err)
	}
	in.GoLiveDate = goLive
	for _, s := range f.Stakeholders {
		in.Stakeholders = append(in.Stakeholders, engine.StakeholderInput{
			Role:             domain.Role(s.Role),
			Name:             s.Name,
			Email:            s.Email,
			Phone:            s.Phone,
			Responsibilities: s.Responsibilities,
		})
	}
	for _, i := range f.Integrations {
		in.Integrations = append(in.Integrations, engine.IntegrationInput{Name: i.Name, Type: i.Type, Configuration: i.Configuration})
	}
	return in, nil
}

func onboardingCmd() *cobra.Command {
	ob := &cobra.Command{Use: "onboarding", Aliases: []string{"ob"}, Short: "Manage onboardings"}
	ob.AddCommand(onboardingCreateCmd())
	ob.AddCommand(onboardingListCmd())
	ob.AddCommand(onboardingShowCmd())
	ob.AddCommand(onboardingProgressCmd())
	ob.AddCommand(onboardingStatusCmd())
	ob.AddCommand(stakeholderAddCmd())
	return ob
}

func onboardingCreateCmd() *cobra.Command {
	var (
		file, customer, size, email, goLive, notes string
		stakeholders, integrations                 []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an onboarding from an intake file or flags",
		Example: `  obl onboarding create --file intake.yml
  obl onboarding create --customer "Lakeside University" --size large --go-live 2026-06-01 \
    --stakeholder project_manager:Pat:pat@lakeside.edu --integration sis:Banner`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var f intakeFile
				if file != "" {
					data, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					if err := yaml.Unmarshal(data, &f); err != nil {
						return fmt.Errorf("invalid intake yaml: %w", err)
					}
				}
				if customer != "" {
					f.Customer.Name = customer
				}
				if size != "" {
					f.Customer.Size = size
				}
				if email != "" {
					f.Customer.ContactEmail = email
				}
				if goLive != "" {
					f.GoLiveDate = goLive
				}
				in, err := f.input(e.Config.Location())
				if err != nil {
					return err
				}
				for _, raw := range stakeholders {
					s, err := parseStakeholderFlag(raw)
					if err != nil {
						return err
					}
					in.Stakeholders = append(in.Stakeholders, s)
				}
				for _, raw := range integrations {
					typ, name, ok := strings.Cut(raw, ":")
					if !ok || name == "" {
						return fmt.Errorf("--integration %q must be type:name", raw)
					}
					in.Integrations = append(in.Integrations, engine.IntegrationInput{Type: typ, Name: name})
				}
				in.Origin = cliOrigin(cmd, notes)
				detail, err := e.CreateOnboarding(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				fmt.Printf("Created onboarding %s for %s\n", detail.Onboarding.ID, detail.Customer.Name)
				printTasks(detail.Tasks, e.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "intake YAML file")
	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&size, "size", "", "customer size (small, medium, large, enterprise)")
	cmd.Flags().StringVar(&email, "contact-email", "", "customer contact email")
	cmd.Flags().StringVar(&goLive, "go-live", "", "go-live date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&stakeholders, "stakeholder", nil, "role:name:email (repeatable)")
	cmd.Flags().StringArrayVar(&integrations, "integration", nil, "type:name (repeatable)")
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func onboardingListCmd() *cobra.Command {
	var f repo.OnboardingFilter
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List onboardings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				f.Status = domain.OnboardingStatus(status)
				items, err := e.ListOnboardings(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printOnboardings(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CustomerID, "customer-id", "", "customer filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, paused, completed)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func onboardingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <onboarding-id>",
		Short: "Show an onboarding with its stakeholders, integrations and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				detail, err := e.GetOnboarding(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				printDetail(detail, e.Now())
				return nil
			})
		},
	}
}

func onboardingProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <onboarding-id>",
		Short: "Show task and integration progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.OnboardingProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProgress(p)
				return nil
			})
		},
	}
}

func onboardingStatusCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <onboarding-id> <active|paused|completed>",
		Short: "Change onboarding status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ob, err := e.SetOnboardingStatus(ctx, args[0], domain.OnboardingStatus(args[1]), cliOrigin(cmd, notes))
				if err != nil {
					return err
				}
				return printJSONOrTable(ob)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "audit notes")
	return cmd
}

func stakeholderAddCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "add-stakeholder <onboarding-id> <role:name:email>",
		Short: "Add a stakeholder to an onboarding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseStakeholderFlag(args[1])
			if err != nil {
				return err
			}
			in.Phone = phone
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.AddStakeholder(ctx, args[0], in, cliOrigin(cmd, ""))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func parseStakeholderFlag(raw string) (engine.StakeholderInput, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return engine.StakeholderInput{}, fmt.Errorf("stakeholder %q must be role:name:email", raw)
	}
	return engine.StakeholderInput{Role: domain.Role(parts[0]), Name: parts[1], Email: parts[2]}, nil
}

// parseDay accepts YYYY-MM-DD (midnight in loc) or RFC 3339.
func parseDay(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%q must be YYYY-MM-DD or RFC 3339", raw)
	}
	return &t, nil
}
