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
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"certline/internal/app"
	"certline/internal/compliance"
	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/metrics"
	"certline/internal/repo"
	"certline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "certline",
	Short: "Certline CLI",
	Long: `Certline tracks personnel certifications against the competency templates of their positions.
- Certifications expire; each one is valid, expiring soon (90 days or less) or expired.
- Renewal tasks are derived from the stored data on every run: reminders at 90, 60 and 30 days and an expired task.
- Task status (pending, in_progress, completed) is the only state kept across runs.
- Compliance compares required areas with held certifications per person.
- Event log: every status change, verification and import, view with 'certline log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("tenant", "", "tenant id (defaults to the only tenant of the workspace)")
	flags.String("now", "", "reference time override (YYYY-MM-DD or RFC3339)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "tenant", "now", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(complianceCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var tenantID, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace and a tenant with the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID = strings.TrimSpace(tenantID)
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			opts, err := engineOptions()
			if err != nil {
				return err
			}
			e := engine.New(conn, config.Default(tenantID), opts...)
			t, err := e.InitTenant(cmd.Context(), tenantID, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "tenant display name")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage tenant config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				out, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tenant config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if cfg.Tenant.ID == "" {
					cfg.Tenant.ID = e.TenantID()
				}
				if cfg.Tenant.ID != e.TenantID() {
					return fmt.Errorf("config tenant %q does not match active tenant %q", cfg.Tenant.ID, e.TenantID())
				}
				if err := e.Repo.UpsertTenantConfig(ctx, nil, cfg.Tenant.ID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func seedCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load departments, positions, personnel, templates and certifications from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := engine.LoadSeedFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.Seed(ctx, data, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to seed YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tasksCmd() *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "Renewal tasks",
		Long:  "Tasks are derived from certification expiry dates; only their status is stored.",
	}
	tasks.AddCommand(tasksListCmd())
	tasks.AddCommand(tasksShowCmd())
	tasks.AddCommand(tasksSetStatusCmd())
	tasks.AddCommand(tasksBulkStatusCmd())
	tasks.AddCommand(tasksCollectCmd())
	return tasks
}

func tasksListCmd() *cobra.Command {
	var f compliance.TaskFilter
	var status, priority, taskType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.TaskStatus(status)
			f.Priority = domain.Priority(priority)
			f.Type = domain.TaskType(taskType)
			if f.Status != "" && !f.Status.Valid() {
				return fmt.Errorf("invalid --status %q", status)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.Tasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Priority", "Status", "Employee", "Department", "Area", "Expiry", "Days"})
				for _, t := range list.Tasks {
					tw.AppendRow(table.Row{t.ID, priorityText(t.Priority), t.Status, t.EmployeeName, t.Department, t.Area, t.ExpiryDate, t.DaysLeft})
				}
				s := list.Stats
				tw.AppendFooter(table.Row{fmt.Sprintf("total %d", s.Total), fmt.Sprintf("critical %d / high %d", s.Critical, s.High),
					fmt.Sprintf("pending %d", s.Pending), fmt.Sprintf("in progress %d", s.InProgress), fmt.Sprintf("completed %d", s.Completed)})
				tw.Render()
				printWarnings(list.Warnings)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&taskType, "type", "", "task type filter")
	cmd.Flags().StringVar(&f.Department, "department", "", "department name filter")
	return cmd
}

func tasksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Task(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func tasksSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "Change a task status",
		Long:  "Allowed moves: pending -> in_progress -> completed, and back to pending from either.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, args[0], domain.TaskStatus(args[1]), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func tasksBulkStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "bulk-status <task-id>...",
		Short: "Change the status of several tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.BulkSetTaskStatus(ctx, args, domain.TaskStatus(status), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Task", "Result", "Message"})
				failed := 0
				for _, r := range results {
					res := color.New(color.FgGreen).Sprint("ok")
					if !r.OK {
						res = color.New(color.FgRed).Sprint(r.Code)
						failed++
					}
					tw.AppendRow(table.Row{r.TaskID, res, r.Message})
				}
				tw.Render()
				if failed > 0 {
					return fmt.Errorf("%d of %d tasks not updated", failed, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func tasksCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Drop stored statuses of tasks that are no longer derived",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				removed, err := e.CollectStaleOverrides(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": removed})
				}
				fmt.Printf("removed %d stale overrides\n", len(removed))
				for _, id := range removed {
					fmt.Println("  " + id)
				}
				return nil
			})
		},
	}
}

func complianceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "compliance", Short: "Compliance against competency templates"}
	var department string
	list := &cobra.Command{
		Use:   "list",
		Short: "List compliance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Compliance(ctx, department)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Person", "Name", "Position", "Department", "%", "Expiring", "Missing"})
				for _, r := range report.Records {
					tw.AppendRow(table.Row{r.PersonID, r.PersonName, r.Position, r.Department, r.CompliancePercent,
						strings.Join(r.ExpiringAreas, ", "), strings.Join(r.MissingAreas, ", ")})
				}
				tw.Render()
				printWarnings(report.Warnings)
				return nil
			})
		},
	}
	list.Flags().StringVar(&department, "department", "", "department name filter")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Fleet compliance statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Compliance(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report.Stats)
				}
				s := report.Stats
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"Employees", s.TotalEmployees},
					{"Full compliance", s.FullCompliance},
					{"Partial compliance", s.PartialCompliance},
					{"Non-compliant", s.NonCompliant},
					{"Average %", s.AvgCompliance},
				})
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <person-id>",
		Short: "Compliance record of one person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.PersonCompliance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})
	return cmd
}

func certCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cert", Short: "Certifications"}
	var personID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List certifications with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Certifications(ctx, personID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Person", "Category", "Area", "Expiry", "Status", "Verified"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.PersonID, c.Category, c.Area, c.ExpiryDate, statusText(c.Status), c.Verified})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&personID, "person", "", "person id filter")
	cmd.AddCommand(list)
	cmd.AddCommand(certVerifyCmd("verify", true))
	cmd.AddCommand(certVerifyCmd("unverify", false))
	cmd.AddCommand(certImportCmd())
	return cmd
}

func certVerifyCmd(use string, verified bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <certification-id>",
		Short: "Set the protocol verification mark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetCertificationVerified(ctx, args[0], verified, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func certImportCmd() *cobra.Command {
	var filePath string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate and import certifications from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := engine.LoadImportFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ImportCertifications(ctx, records, dryRun, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Status", "Person", "Messages"})
				for _, row := range report.Rows {
					tw.AppendRow(table.Row{row.Index + 1, row.Status, row.PersonName, strings.Join(row.Messages, "; ")})
				}
				tw.Render()
				fmt.Printf("valid %d, warnings %d, errors %d, imported %d\n", report.Valid, report.Warnings, report.Errors, report.Imported)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML or JSON records")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "Role management"}
	var target, role string
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role (admin, hr_manager, viewer) to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	for _, c := range []*cobra.Command{grant, revoke} {
		c.Flags().StringVar(&target, "actor", "", "target actor id")
		c.Flags().StringVar(&role, "role", "", "role")
		_ = c.MarkFlagRequired("actor")
		_ = c.MarkFlagRequired("role")
		cmd.AddCommand(c)
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List role assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.RoleAssignments(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show permissions of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				perms, err := e.Auth.Permissions(ctx, nil, e.TenantID(), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": actor, "tenant_id": e.TenantID(), "permissions": perms})
			})
		},
	})
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "label")
	cmd.AddCommand(create)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, repo.EventFilter{
					TenantID: e.TenantID(), Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, allowDevLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("CERTLINE_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{
						JWTSecret:        secret,
						AllowActorHeader: allowActorHeader,
						AllowDevLogin:    allowDevLogin,
						Logger:           e.Logger,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				e.Logger.Info("serving", "addr", addr, "base_path", basePath, "tenant_id", e.TenantID())
				fmt.Printf("Serving Certline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n",
					addr, basePath, basePath)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config server.base_path)")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept unauthenticated X-Actor-Id (local use only)")
	cmd.Flags().BoolVar(&allowDevLogin, "allow-dev-login", false, "expose POST /auth/dev/login to mint tokens (local use only)")
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseNow(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(compliance.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: use YYYY-MM-DD or RFC3339", raw)
	}
	// noon keeps the day stable across tenant timezones
	return t.Add(12 * time.Hour), nil
}

func engineOptions() ([]engine.Option, error) {
	opts := []engine.Option{
		engine.WithLogger(newLogger()),
		engine.WithMetrics(metrics.New()),
	}
	if raw := viper.GetString("now"); raw != "" {
		now, err := parseNow(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithClock(func() time.Time { return now }))
	}
	return opts, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	opts, err := engineOptions()
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveTenantAndConfig(ctx, viper.GetString("tenant"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, opts...)
	if err := e.Hydrate(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
}

func priorityText(p domain.Priority) string {
	switch p {
	case domain.PriorityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(p)
	case domain.PriorityHigh:
		return color.New(color.FgRed).Sprint(p)
	case domain.PriorityMedium:
		return color.New(color.FgYellow).Sprint(p)
	}
	return string(p)
}

func statusText(s domain.LifecycleStatus) string {
	switch s {
	case domain.StatusExpired:
		return color.New(color.FgRed).Sprint(s)
	case domain.StatusExpiringSoon:
		return color.New(color.FgYellow).Sprint(s)
	case domain.StatusValid:
		return color.New(color.FgGreen).Sprint(s)
	}
	return "-"
}

// printWarnings lists skipped or incomplete records on stderr.
func printWarnings(warnings []compliance.Warning) {
	if len(warnings) == 0 {
		return
	}
	warn := color.New(color.FgYellow)
	for _, w := range warnings {
		warn.Fprintf(os.Stderr, "warning %s: %s\n", w.Code, w.Message)
	}
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
