package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"civicline/internal/app"
	"civicline/internal/config"
	"civicline/internal/db"
	"civicline/internal/domain"
	"civicline/internal/events"
	"civicline/internal/migrate"
	"civicline/internal/remote"
	"civicline/internal/repo"
	"civicline/internal/resolver"
	"civicline/internal/server"
	"civicline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "civic",
	Short: "Civicline CLI",
	Long: `Civicline is a citizen engagement client for reporting civic issues.
Reports are kept in sync with the remote service when it is reachable and
fall back to a local workspace cache when it is not, so the tool keeps
working offline. Officials and field workers are tracked in a local
directory; 'civic mine' shows the reports assigned to the signed-in worker.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CIVICLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("api-url", "", "service base URL (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(mineCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(serveCmd())
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	log := newLogger(viper.GetString("log-level"), cfg.Log.Level)
	a, err := app.Open(ctx, app.Options{
		Workspace: workspace,
		BaseURL:   viper.GetString("api-url"),
		Log:       log,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireSession(a *app.App) (store.Session, error) {
	sess, ok := a.Session.Current()
	if !ok {
		return store.Session{}, fmt.Errorf("not signed in; run civic login")
	}
	return sess, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default civicline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var username, secret string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; falls back to the local directory when the service is unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || secret == "" {
				return fmt.Errorf("--username and --secret required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := a.Session.Login(ctx, username, secret)
				if err != nil {
					return err
				}
				if sess.Local() {
					fmt.Printf("signed in as %s (local directory, offline mode)\n", sess.Identity.Name)
				} else {
					fmt.Printf("signed in as %s (%s)\n", sess.Identity.Name, sess.Identity.Role)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&secret, "secret", "", "account secret")
	return cmd
}

func registerCmd() *cobra.Command {
	var name, username, secret, role, department string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a service account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || username == "" || secret == "" {
				return fmt.Errorf("--name, --username and --secret required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := a.Session.Register(ctx, remote.Registration{
					Name:       name,
					Username:   username,
					Secret:     secret,
					Role:       role,
					Department: department,
				})
				if err != nil {
					return err
				}
				fmt.Printf("registered %s (%s)\n", sess.Identity.Name, sess.Identity.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&secret, "secret", "", "account secret")
	cmd.Flags().StringVar(&role, "role", "", "citizen, official or worker")
	cmd.Flags().StringVar(&department, "department", "", "department")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := requireSession(a)
				if err != nil {
					return err
				}
				return printJSONOrTable(sess.Identity)
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("signed out")
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Manage civic reports"}
	report.AddCommand(reportCreateCmd())
	report.AddCommand(reportListCmd())
	report.AddCommand(reportShowCmd())
	report.AddCommand(reportUpdateCmd())
	report.AddCommand(reportDeleteCmd())
	report.AddCommand(reportRefreshCmd())
	return report
}

func reportCreateCmd() *cobra.Command {
	var content, category, priority, department, location string
	var hashtags, mediaPaths []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if content == "" {
				return fmt.Errorf("--content required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := requireSession(a)
				if err != nil {
					return err
				}
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				refs, err := a.Media.Attach(ctx, mediaPaths)
				if err != nil {
					return err
				}
				t, res, err := a.Tasks.Create(ctx, store.TaskDraft{
					Author:     sess.Identity,
					Content:    content,
					Category:   category,
					Priority:   priority,
					Department: department,
					Location:   location,
					Hashtags:   hashtags,
					Media:      refs,
				})
				if err != nil {
					return err
				}
				fmt.Printf("created report %s (%s)\n", t.ID, res.Source)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "report text")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&department, "department", "", "responsible department")
	cmd.Flags().StringVar(&location, "location", "", "location description")
	cmd.Flags().StringSliceVar(&hashtags, "hashtag", nil, "hashtag (repeatable)")
	cmd.Flags().StringSliceVar(&mediaPaths, "media", nil, "file to attach (repeatable)")
	return cmd
}

func reportListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				tasks := a.Tasks.Tasks()
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Author", "Category", "Status", "Assigned To", "Likes"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.AuthorName, t.Category, t.Status, t.AssignedTo, t.Likes})
				}
				tw.Render()
				fmt.Printf("source: %s\n", a.Tasks.Source())
				return nil
			})
		},
	}
	return cmd
}

func reportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				t, ok := a.Tasks.Get(args[0])
				if !ok {
					return fmt.Errorf("report %s not found", args[0])
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func reportUpdateCmd() *cobra.Command {
	var content, category, priority, department, location, status, assignTo, assignWorker string
	var likes, shares int
	cmd := &cobra.Command{
		Use:   "update <report-id>",
		Short: "Update report fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.TaskPatch{}
			flags := cmd.Flags()
			if flags.Changed("content") {
				patch.Content = &content
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("department") {
				patch.Department = &department
			}
			if flags.Changed("location") {
				patch.Location = &location
			}
			if flags.Changed("status") {
				s := domain.Status(status)
				switch s {
				case domain.StatusPending, domain.StatusAssigned, domain.StatusInProgress, domain.StatusCompleted, domain.StatusReviewed:
				default:
					return fmt.Errorf("invalid status %q", status)
				}
				patch.Status = &s
			}
			if flags.Changed("assign-to") {
				patch.AssignedTo = &assignTo
			}
			if flags.Changed("assign-worker") {
				patch.AssignedWorker = &assignWorker
			}
			if flags.Changed("likes") {
				patch.Likes = &likes
			}
			if flags.Changed("shares") {
				patch.Shares = &shares
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				if _, ok := a.Tasks.Get(args[0]); !ok {
					return fmt.Errorf("report %s not found", args[0])
				}
				res, err := a.Tasks.Update(ctx, args[0], patch)
				if err != nil {
					return err
				}
				fmt.Printf("updated report %s (%s)\n", args[0], res.Source)
				t, _ := a.Tasks.Get(args[0])
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "report text")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&department, "department", "", "responsible department")
	cmd.Flags().StringVar(&location, "location", "", "location description")
	cmd.Flags().StringVar(&status, "status", "", "pending, assigned, in_progress, completed or reviewed")
	cmd.Flags().StringVar(&assignTo, "assign-to", "", "assignee id")
	cmd.Flags().StringVar(&assignWorker, "assign-worker", "", "assignee label")
	cmd.Flags().IntVar(&likes, "likes", 0, "like count")
	cmd.Flags().IntVar(&shares, "shares", 0, "share count")
	return cmd
}

func reportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <report-id>",
		Short: "Delete a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				res, err := a.Tasks.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("deleted report %s (%s)\n", args[0], res.Source)
				return nil
			})
		},
	}
}

func reportRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-sync reports from the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Tasks.Refresh(ctx); err != nil {
					return err
				}
				fmt.Printf("%d reports (source: %s)\n", len(a.Tasks.Tasks()), a.Tasks.Source())
				return nil
			})
		},
	}
}

func mineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Show reports assigned to or completed by the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := requireSession(a)
				if err != nil {
					return err
				}
				if err := a.Tasks.Load(ctx); err != nil {
					return err
				}
				part := resolver.Split(a.Tasks.Tasks(), sess.Identity)
				if viper.GetBool("json") {
					return printJSON(part)
				}
				printTaskTable("ACTIVE", part.Assigned)
				printTaskTable("COMPLETED", part.Completed)
				return nil
			})
		},
	}
}

func printTaskTable(title string, tasks []domain.Task) {
	fmt.Println(title)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Content", "Status", "Priority", "Location"})
	for _, t := range tasks {
		content := t.Content
		if len(content) > 60 {
			content = content[:57] + "..."
		}
		tw.AppendRow(table.Row{t.ID, content, t.Status, t.Priority, t.Location})
	}
	tw.Render()
}

func directoryCmd() *cobra.Command {
	dir := &cobra.Command{Use: "directory", Short: "Manage the officials and workers directory"}
	dir.AddCommand(officialCmd())
	dir.AddCommand(workerCmd())
	return dir
}

func officialCmd() *cobra.Command {
	official := &cobra.Command{Use: "official", Short: "Manage government officials"}
	official.AddCommand(officialAddCmd())
	official.AddCommand(identityListCmd("officials", func(a *app.App) []domain.Identity { return a.Directory.Officials() }))
	official.AddCommand(identityUpdateCmd())
	official.AddCommand(identityRemoveCmd(domain.RoleOfficial))
	return official
}

func workerCmd() *cobra.Command {
	worker := &cobra.Command{Use: "worker", Short: "Manage field workers"}
	worker.AddCommand(workerAddCmd())
	worker.AddCommand(identityListCmd("workers", func(a *app.App) []domain.Identity { return a.Directory.Workers() }))
	worker.AddCommand(identityUpdateCmd())
	worker.AddCommand(identityRemoveCmd(domain.RoleWorker))
	return worker
}

func officialAddCmd() *cobra.Command {
	var name, username, department, designation string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an official",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				id, err := a.Directory.AddOfficial(ctx, store.NewOfficial{
					Name:        name,
					Username:    username,
					Department:  department,
					Designation: designation,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&designation, "designation", "", "designation")
	return cmd
}

func workerAddCmd() *cobra.Command {
	var name, username, department string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				id, err := a.Directory.AddWorker(ctx, store.NewWorker{
					Name:       name,
					Username:   username,
					Department: department,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&department, "department", "", "department")
	return cmd
}

func identityListCmd(what string, pick func(a *app.App) []domain.Identity) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List " + what,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ids := pick(a)
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Username", "Department", "Status"})
				for _, id := range ids {
					tw.AppendRow(table.Row{id.ID, id.Name, id.Username, id.Department, id.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func identityUpdateCmd() *cobra.Command {
	var name, username, department, designation, status string
	var verified bool
	var assigned, completed int
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update a directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.IdentityPatch{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("username") {
				patch.Username = &username
			}
			if flags.Changed("department") {
				patch.Department = &department
			}
			if flags.Changed("designation") {
				patch.Designation = &designation
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("verified") {
				patch.Verified = &verified
			}
			if flags.Changed("assigned") {
				patch.Assigned = &assigned
			}
			if flags.Changed("completed") {
				patch.Completed = &completed
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				id, err := a.Directory.UpdateUser(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&designation, "designation", "", "designation")
	cmd.Flags().StringVar(&status, "status", "", "availability status")
	cmd.Flags().BoolVar(&verified, "verified", false, "verified flag")
	cmd.Flags().IntVar(&assigned, "assigned", 0, "assigned counter")
	cmd.Flags().IntVar(&completed, "completed", 0, "completed counter")
	return cmd
}

func identityRemoveCmd(role domain.Role) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Directory.DeleteUser(ctx, args[0], role); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference civic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			mediaDir, err := db.MediaDir(workspace)
			if err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			log := newLogger(viper.GetString("log-level"), cfg.Log.Level)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CIVICLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CIVICLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Repo:     repo.Repo{DB: conn},
				Events:   events.Writer{DB: conn},
				Auth:     authCfg,
				BasePath: basePath,
				MediaDir: mediaDir,
				Log:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Civicline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8686", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
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
