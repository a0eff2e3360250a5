package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"socialservice/internal/app"
	"socialservice/internal/config"
	"socialservice/internal/db"
	"socialservice/internal/domain"
	"socialservice/internal/engine"
	"socialservice/internal/engine/auth"
	"socialservice/internal/logging"
	"socialservice/internal/migrate"
	"socialservice/internal/repo"
	"socialservice/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ss",
	Short: "Social service workflow CLI",
	Long: `ss runs the university social service workflow.
- Work selection: a student's assignment, reviewed by a supervisor, then documented by a plan.
- Plan conformity: the supervisor accepts or rejects the uploaded plan; acceptance issues the acceptance letter.
- Schedule: ordered activities; evidence is only accepted around each planned end date.
- Close-out: completion letter, final report, certificate.
- Group members: institutional emails of the students sharing a group selection.
- Observation log: append-only remarks, such as the reason behind a rejection.
- Event log: every change, view with 'ss log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
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
	viper.SetEnvPrefix("SOCIALSERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (defaults to <workspace>/socialservice.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("role", "admin", "actor role")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "role", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(membersCmd())
	rootCmd.AddCommand(observationCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, legacyHeaders bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			rt, err := openRuntime(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt_secret"),
				AllowDevLogin:          devLogin,
				AllowLegacyActorHeader: legacyHeaders,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SOCIALSERVICE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				Policy:   auth.NewPolicy(rt.Config),
				Files:    rt.Files,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			server.NewWebhookDispatcher(rt.Engine, logger).Start(cmd.Context())
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving social service API",
				slog.String("addr", addr),
				slog.String("base_path", basePath),
				slog.String("docs", "/docs"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (never in production)")
	cmd.Flags().BoolVar(&legacyHeaders, "legacy-actor-headers", false, "trust X-Actor-Id/X-Actor-Role without a token")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"version": v})
			}
			fmt.Printf("database at version %d\n", v)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Config is the rulebook: institution email domain and timezone, evidence window, storage, directory lookup, roles and webhooks.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err == nil {
				err = c.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id acting as --role",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			role := viper.GetString("role")
			if !auth.NewPolicy(c).Known(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := server.SignToken(viper.GetString("jwt_secret"), viper.GetString("actor-id"), role, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every applied change, newest first.",
	}
	var n int
	var workID int64
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, repo.EventFilter{WorkID: workID, Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Work", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.WorkID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().Int64Var(&workID, "work", 0, "work selection id")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

// --- helpers ---

func newLogger() *slog.Logger {
	return logging.NewLogger(viper.GetString("log-level"), viper.GetString("log-format"))
}

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.Load(viper.GetString("workspace"))
}

func openRuntime(ctx context.Context, logger *slog.Logger) (*app.Runtime, error) {
	return app.Open(ctx, viper.GetString("workspace"), viper.GetString("config"), logger)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx, newLogger())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func currentActor() domain.Actor {
	return domain.Actor{ID: viper.GetString("actor-id"), Role: viper.GetString("role")}
}

func readUpload(path string) (engine.Upload, error) {
	if path == "" {
		return engine.Upload{}, fmt.Errorf("--file required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Upload{}, err
	}
	return engine.Upload{Name: filepath.Base(path), Data: data}, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcome(out engine.Outcome) error {
	if err := printWork(out.Work); err != nil {
		return err
	}
	for _, w := range out.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}

func printWork(w domain.WorkSelection) error {
	if viper.GetBool("json") {
		return printJSON(w)
	}
	tw := newTable(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"id", w.ID},
		{"owner", w.OwnerID},
		{"service_type", w.ServiceType},
		{"plan_state", w.PlanState},
		{"plan_conformity", w.ConformityValue()},
		{"plan_file", deref(w.PlanFile)},
		{"acceptance_letter", deref(w.AcceptanceLetterFile)},
		{"termination_request", w.TerminationRequest},
		{"completion_letter", deref(w.CompletionLetterFile)},
		{"final_report", deref(w.FinalReportFile)},
		{"final_report_state", w.FinalReportState},
		{"certificate", deref(w.CertificateFile)},
		{"finished", w.Finished()},
	})
	for _, m := range w.Members {
		tw.AppendRow(table.Row{"member", fmt.Sprintf("%s (%s)", m.Email, m.Status)})
	}
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
