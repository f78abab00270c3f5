package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/app"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/engine"
	"onboardline/internal/migrate"
	"onboardline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "obl",
	Short: "Onboardline CLI",
	Long: `Onboardline runs customer onboardings: intake creates the task plan, rules assign
owners and due dates, overdue and blocked tasks escalate up the stakeholder chain,
integrations are validated, and every change lands in the audit ledger.

- Workspace: a directory holding onboardline.yml and the .onboardline database.
- Rules: assignment and escalation tables (built in, or rules_file in onboardline.yml).
- Escalation: a task escalates at most once per local day ('obl escalation run').
- Audit: query, summarize and export the ledger ('obl audit').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OBL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(onboardingCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(escalationCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(rulesCmd())
}

func initCmd() *cobra.Command {
	var environment string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create onboardline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(environment)), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s and %s (schema v%d)\n", path, db.Path(workspace), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "development", "environment name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			store, err := a.Archive(cmd.Context())
			if err != nil {
				a.Logger.Warn("audit archive unavailable; export disabled", "err", err)
				store = nil
			}
			handler, err := server.New(server.Config{
				Engine:      a.Engine,
				BasePath:    basePath,
				Metrics:     a.Metrics,
				Archive:     store,
				CORSOrigins: a.Config.Server.CORSOrigins,
				Logger:      a.Logger,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Env.HTTPAddr
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Logger.Info("serving onboardline api", "addr", "http://"+addr+basePath, "openapi", basePath+"/openapi.json", "docs", basePath+"/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default OBL_HTTP_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func rulesCmd() *cobra.Command {
	rules := &cobra.Command{Use: "rules", Short: "Inspect assignment and escalation rules"}
	rules.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active rule tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Rules)
				}
				printRules(e.Rules)
				return nil
			})
		},
	})
	return rules
}

func openApp(ctx context.Context, tracing bool) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
		Tracing:   tracing,
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func cliOrigin(cmd *cobra.Command, notes string) engine.Origin {
	return engine.Origin{Source: engine.SourceCLI, Trigger: cmd.CommandPath(), Notes: notes}
}
