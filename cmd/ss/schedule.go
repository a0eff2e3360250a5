package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"socialservice/internal/domain"
	"socialservice/internal/engine"
)

// scheduleFile is the YAML (or JSON) document accepted by `schedule replace`.
type scheduleFile struct {
	Activities []struct {
		Description    string `yaml:"description"`
		Justification  string `yaml:"justification"`
		StartDate      string `yaml:"start_date"`
		PlannedEndDate string `yaml:"planned_end_date"`
		Results        string `yaml:"results"`
	} `yaml:"activities"`
}

func readSchedule(path string) ([]engine.ActivityInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid schedule file: %w", err)
	}
	items := make([]engine.ActivityInput, 0, len(f.Activities))
	for _, a := range f.Activities {
		items = append(items, engine.ActivityInput{
			Description:    a.Description,
			Justification:  a.Justification,
			StartDate:      a.StartDate,
			PlannedEndDate: a.PlannedEndDate,
			Results:        a.Results,
		})
	}
	return items, nil
}

func printActivities(e engine.Engine, items []domain.ScheduledActivity) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "#", "Description", "Start", "Planned end", "Window", "Completed", "Evidence", "Status"})
	for _, a := range items {
		window := ""
		if from, to, err := e.EvidenceWindow(a); err == nil {
			window = from + " .. " + to
		}
		status := ""
		if a.Status != nil {
			status = string(*a.Status)
		}
		tw.AppendRow(table.Row{a.ID, a.Ordinal, a.Description, a.StartDate, a.PlannedEndDate, window, deref(a.CompletedOn), deref(a.EvidenceFile), status})
	}
	tw.Render()
	return nil
}

// activityCmd builds a command taking an activity id.
func activityCmd(use, short string, fn func(ctx context.Context, e engine.Engine, id int64) (domain.ScheduledActivity, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <activity-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := fn(ctx, e, id)
				if err != nil {
					return err
				}
				return printActivities(e, []domain.ScheduledActivity{a})
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	sched := &cobra.Command{Use: "schedule", Short: "Scheduled activities and evidence"}

	sched.AddCommand(&cobra.Command{
		Use:   "show <work-id>",
		Short: "List the schedule of a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSchedule(ctx, id)
				if err != nil {
					return err
				}
				return printActivities(e, items)
			})
		},
	})

	var file string
	replace := &cobra.Command{
		Use:   "replace <work-id>",
		Short: "Replace the schedule from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if file == "" {
				return fmt.Errorf("--file required")
			}
			items, err := readSchedule(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.ReplaceSchedule(ctx, currentActor(), id, items)
				if err != nil {
					return err
				}
				return printActivities(e, saved)
			})
		},
	}
	replace.Flags().StringVar(&file, "file", "", "schedule file")
	sched.AddCommand(replace)

	var evidenceFile, evidenceStatus string
	attach := activityCmd("evidence", "Attach evidence to an activity", func(ctx context.Context, e engine.Engine, id int64) (domain.ScheduledActivity, error) {
		up, err := readUpload(evidenceFile)
		if err != nil {
			return domain.ScheduledActivity{}, err
		}
		var status *domain.ActivityStatus
		if evidenceStatus != "" {
			s := domain.ActivityStatus(evidenceStatus)
			status = &s
		}
		return e.AttachEvidence(ctx, currentActor(), id, up, status)
	})
	attach.Flags().StringVar(&evidenceFile, "file", "", "evidence path")
	attach.Flags().StringVar(&evidenceStatus, "status", "", "approved, observed or pending")
	sched.AddCommand(attach)

	sched.AddCommand(activityCmd("clear-evidence", "Remove the evidence of an activity", func(ctx context.Context, e engine.Engine, id int64) (domain.ScheduledActivity, error) {
		return e.ClearEvidence(ctx, currentActor(), id)
	}))

	var status string
	setStatus := activityCmd("status", "Set the approval status of an activity", func(ctx context.Context, e engine.Engine, id int64) (domain.ScheduledActivity, error) {
		return e.SetApprovalStatus(ctx, currentActor(), id, domain.ActivityStatus(status))
	})
	setStatus.Flags().StringVar(&status, "status", "", "approved, observed or pending")
	sched.AddCommand(setStatus)

	var text string
	observe := activityCmd("observe", "Record an observation on an activity", func(ctx context.Context, e engine.Engine, id int64) (domain.ScheduledActivity, error) {
		return e.RecordObservation(ctx, currentActor(), id, text)
	})
	observe.Flags().StringVar(&text, "text", "", "observation text")
	sched.AddCommand(observe)
	return sched
}
