package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydrocalc/internal/database"
	"hydrocalc/internal/export"
	"hydrocalc/internal/models"
	"hydrocalc/internal/services/project"
	"hydrocalc/internal/services/scenario"
	"hydrocalc/internal/services/tasks"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, cmd, func(ctx context.Context, a *App) error {
				return a.serve(ctx)
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and the zone and mode reference rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.Init(cfg.Database, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer database.Close(db)
			fmt.Println("reference data seeded")
			return nil
		},
	}
}

// withApp starts the application, runs fn and shuts everything down again
func withApp(ctx context.Context, cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a := NewApp(cfg)
	if err := a.startup(ctx); err != nil {
		a.shutdown(context.Background())
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.shutdown(shutdownCtx)
	}()
	return fn(ctx, a)
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectExportCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the projects of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				items, err := a.projectService.ListByUser(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(os.Stdout, items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Northing", "Easting", "Last Modified"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Northing, p.Easting, p.LastModified})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "owner id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var in project.CreateProjectInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with one default scenario per method",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				view, err := a.projectService.Create(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(os.Stdout, view)
				}
				fmt.Printf("created project %s\n", view.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "project title")
	cmd.Flags().StringVar(&in.Description, "description", "", "project description")
	cmd.Flags().UintVar(&in.UserID, "user-id", 0, "owner id")
	cmd.Flags().Float64Var(&in.Northing, "northing", 0, "LV95 northing")
	cmd.Flags().Float64Var(&in.Easting, "easting", 0, "LV95 easting")
	cmd.Flags().Float64Var(&in.CatchmentArea, "catchment-area", 0, "catchment area in km2")
	cmd.Flags().Float64Var(&in.ChannelLength, "channel-length", 0, "channel length in m")
	cmd.Flags().Float64Var(&in.DeltaH, "delta-h", 0, "height difference in m")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				view, err := a.projectService.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(os.Stdout, view)
				}
				printProject(view)
				return nil
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "delete <project-id>...",
		Short: "Delete projects owned by a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				if err := a.projectService.DeleteMany(ctx, args, userID); err != nil {
					return err
				}
				fmt.Printf("deleted %d project(s)\n", len(args))
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "owner id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Write a project workbook (.xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				view, err := a.projectService.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					out = view.ID + ".xlsx"
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.WriteProjectWorkbook(view, f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <project-id>.xlsx)")
	return cmd
}

func printProject(view *models.ProjectView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"ID", view.ID})
	tw.AppendRow(table.Row{"Title", view.Title})
	tw.AppendRow(table.Row{"Northing", view.Point.Northing})
	tw.AppendRow(table.Row{"Easting", view.Point.Easting})
	tw.AppendRow(table.Row{"Catchment area", view.CatchmentArea})
	tw.AppendRow(table.Row{"Channel length", view.ChannelLength})
	tw.AppendRow(table.Row{"Delta H", view.DeltaH})
	tw.AppendRow(table.Row{"Last modified", view.LastModified.Format(time.RFC3339)})
	tw.Render()

	st := table.NewWriter()
	st.SetOutputMirror(os.Stdout)
	st.AppendHeader(table.Row{"Method", "Rows", "Annualities", "Parameters"})
	for _, method := range scenario.Methods {
		for _, sc := range scenario.Scenarios(&view.Project, method) {
			st.AppendRow(table.Row{method.Label(), joinUints(sc.RowIDs), joinFloats(sc.Annualities), fmt.Sprintf("%+v", sc.Params)})
		}
	}
	st.Render()
}

func jobsCmd() *cobra.Command {
	j := &cobra.Command{Use: "jobs", Short: "Inspect housekeeping jobs"}
	j.AddCommand(jobsListCmd())
	j.AddCommand(jobsDeleteCmd())
	return j
}

func jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				jobs, err := a.schedulerService.ListJobs()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Cron", "Enabled", "Last Run", "Next Run"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Name, j.JobType, j.Cron, j.Enabled, deref(j.LastRunAt), deref(j.NextRun)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id|name>",
		Short: "Delete a scheduled job; built-in jobs are recreated at the next start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				if err := a.schedulerService.DeleteJob(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted job %s\n", args[0])
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Run geoprocessing tasks and follow their progress"}
	t.AddCommand(taskCatchmentCmd())
	t.AddCommand(taskIsozonesCmd())
	t.AddCommand(taskSubcatchmentsCmd())
	return t
}

func taskCatchmentCmd() *cobra.Command {
	var northing, easting float64
	var riverNetwork bool
	cmd := &cobra.Command{
		Use:   "catchment",
		Short: "Delineate the catchment of an outlet point",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				run, err := a.geoService.StartCatchment(ctx, northing, easting, riverNetwork)
				if err != nil {
					return err
				}
				return follow(ctx, run)
			})
		},
	}
	cmd.Flags().Float64Var(&northing, "northing", 0, "LV95 northing of the outlet")
	cmd.Flags().Float64Var(&easting, "easting", 0, "LV95 easting of the outlet")
	cmd.Flags().BoolVar(&riverNetwork, "rivernetwork", false, "also return the river network")
	_ = cmd.MarkFlagRequired("northing")
	_ = cmd.MarkFlagRequired("easting")
	return cmd
}

func taskIsozonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "isozones <project-id>",
		Short: "Compute the isozones of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				run, err := a.geoService.StartIsozones(ctx, args[0])
				if err != nil {
					return err
				}
				return follow(ctx, run)
			})
		},
	}
}

func taskSubcatchmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subcatchments <points.zip>",
		Short: "Upload a zipped point shapefile and wait for the result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd.Context(), cmd, func(ctx context.Context, a *App) error {
				run, err := a.geoService.StartSubcatchments(ctx, filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				return follow(ctx, run)
			})
		},
	}
}

// follow prints new progress lines of run until it finishes
func follow(ctx context.Context, run *tasks.Run) error {
	fmt.Printf("task %s accepted (%s)\n", run.Handle.ID, run.Variant)

	printed := 0
	flush := func() {
		lines := run.Progress.Lines()
		for _, line := range lines[printed:] {
			fmt.Println(line)
		}
		printed = len(lines)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			flush()
		case <-run.Done():
			flush()
			outcome, _, err := run.Result()
			if err != nil {
				return err
			}
			if outcome.Status == tasks.StatusFailure {
				return fmt.Errorf("task %s failed", run.Handle.ID)
			}
			if outcome.Artifact != nil {
				fmt.Printf("result file: %s\n", outcome.Artifact.URL)
			} else if viper.GetBool("json") && len(outcome.Payload) > 0 {
				fmt.Println(string(outcome.Payload))
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinUints(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func joinFloats(numbers []float64) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = fmt.Sprintf("%g", n)
	}
	return strings.Join(parts, ",")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
