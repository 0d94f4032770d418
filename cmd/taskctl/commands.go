package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"weather-tasks/client"
	"weather-tasks/config"
	"weather-tasks/domain"
)

type options struct {
	cfg    config.Client
	json   bool
	logger *log.Logger
}

// controller builds a loaded controller. Commands that do not need the
// template catalog skip fetching it.
func (o *options) controller(ctx context.Context, withCatalog bool) (*client.Controller, error) {
	var catalog client.Catalog = client.StaticCatalog{}
	if withCatalog {
		catalog = client.NewHTTPCatalog(o.cfg.TemplateFeed)
	}
	ctrl := client.NewController(client.New(o.cfg.APIURL), catalog, client.NewFileIdentity(o.cfg.IdentityFile), o.logger)
	if err := ctrl.Load(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func newRootCmd(cfg config.Client) *cobra.Command {
	o := &options{cfg: cfg, logger: log.StandardLogger()}
	root := &cobra.Command{
		Use:          "taskctl",
		Short:        "Schedule and manage weather dependent tasks",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&o.cfg.APIURL, "api", cfg.APIURL, "task service base URL")
	root.PersistentFlags().StringVar(&o.cfg.TemplateFeed, "feed", cfg.TemplateFeed, "task template feed URL")
	root.PersistentFlags().StringVar(&o.cfg.IdentityFile, "identity", cfg.IdentityFile, "file holding this device's user id")
	root.PersistentFlags().BoolVar(&o.json, "json", false, "print JSON instead of a table")

	root.AddCommand(
		templatesCmd(o),
		scheduleCmd(o),
		listCmd(o),
		updateCmd(o),
		deleteCmd(o),
		whoamiCmd(o),
	)
	return root
}

func templatesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the task templates available for scheduling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := o.controller(cmd.Context(), true)
			if err != nil {
				return err
			}
			templates := ctrl.Templates()
			if o.json {
				return writeJSON(cmd.OutOrStdout(), templates)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTASK\tWEATHER\tTEMPERATURE\tHUMIDITY")
			for _, tpl := range templates {
				t := tpl.NewTask(domain.Schedule{})
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tpl.ID, tpl.Task,
					formatWeather(t.WeatherRestrictions), formatRange(t.RequiredTemperature), formatRange(t.IdealHumidity))
			}
			return tw.Flush()
		},
	}
}

func scheduleCmd(o *options) *cobra.Command {
	var form client.Form
	var templateID string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a task from a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := o.controller(cmd.Context(), true)
			if err != nil {
				return err
			}
			form.TemplateID = domain.TemplateID(templateID)
			ctrl.SetForm(form)
			task, err := ctrl.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			if o.json {
				return writeJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task scheduled successfully! taskID=%d\n", task.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id")
	cmd.Flags().StringVar(&form.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&form.Time, "time", "", "time of day")
	cmd.Flags().StringVar(&form.Location, "location", "", "location, one of: "+strings.Join(client.LocationNames(), ", "))
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func listCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List this device's scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := o.controller(cmd.Context(), false)
			if err != nil {
				return err
			}
			tasks := ctrl.Tasks()
			if o.json {
				return writeJSON(cmd.OutOrStdout(), tasks)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK ID\tTASK\tDATE\tTIME\tLOCATION\tWEATHER")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", t.TaskID, t.Task, t.Date, t.Time, t.Location, formatWeather(t.WeatherRestrictions))
			}
			return tw.Flush()
		},
	}
}

func updateCmd(o *options) *cobra.Command {
	var label, date, clock, location string
	cmd := &cobra.Command{
		Use:   "update TASK_ID",
		Short: "Reschedule or rename a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			ctrl, err := o.controller(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := ctrl.Edit(taskID); err != nil {
				return err
			}
			draft, _ := ctrl.Draft()
			flags := cmd.Flags()
			if flags.Changed("task") {
				draft.Task = label
			}
			if flags.Changed("date") {
				draft.Date = date
			}
			if flags.Changed("time") {
				draft.Time = clock
			}
			if flags.Changed("location") {
				coords, ok := client.LookupLocation(location)
				if !ok {
					return &domain.ValidationError{Field: "location", Reason: "unknown location " + strconv.Quote(location)}
				}
				draft.Location = location
				draft.Lat, draft.Lon = coords.Lat, coords.Lon
			}
			if err := ctrl.SetDraft(draft); err != nil {
				return err
			}
			if err := ctrl.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Task updated successfully")
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "task", "", "task label")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "time of day")
	cmd.Flags().StringVar(&location, "location", "", "location label")
	return cmd
}

func deleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			ctrl, err := o.controller(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := ctrl.Edit(taskID); err != nil {
				return err
			}
			if err := ctrl.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Task deleted successfully")
			return nil
		},
	}
}

func whoamiCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print this device's user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := client.NewFileIdentity(o.cfg.IdentityFile).UserID()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := sonic.ConfigStd.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatWeather(w domain.WeatherSet) string {
	if len(w) == 0 {
		return "any"
	}
	return strings.Join(w, ",")
}

func formatRange(r domain.Range) string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + "-" + strconv.FormatFloat(r.Max, 'f', -1, 64)
}
