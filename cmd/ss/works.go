package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"socialservice/internal/domain"
	"socialservice/internal/engine"
	"socialservice/internal/repo"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// outcomeCmd builds a command taking a work id and running fn.
func outcomeCmd(use, short string, fn func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <work-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := fn(ctx, e, id)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
}

func workCmd() *cobra.Command {
	work := &cobra.Command{Use: "work", Short: "Manage work selections"}
	work.AddCommand(workCreateCmd())
	work.AddCommand(workListCmd())
	work.AddCommand(workShowCmd())

	var reason string
	review := outcomeCmd("review", "Accept or reject a pending selection", nil)
	var verdict string
	review.RunE = verdictRunner(&verdict, func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.ReviewSelection(ctx, currentActor(), id, domain.PlanState(verdict), reason)
	})
	review.Flags().StringVar(&verdict, "verdict", "", "accepted or rejected")
	review.Flags().StringVar(&reason, "reason", "", "reason (required to reject)")
	work.AddCommand(review)

	work.AddCommand(planCmd())
	work.AddCommand(closeOutCmd())
	return work
}

func verdictRunner(verdict *string, fn func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if *verdict == "" {
			return fmt.Errorf("--verdict required")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			out, err := fn(ctx, e, id)
			if err != nil {
				return err
			}
			return printOutcome(out)
		})
	}
}

func uploadRunner(file *string, fn func(ctx context.Context, e engine.Engine, id int64, up engine.Upload) (engine.Outcome, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		up, err := readUpload(*file)
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			out, err := fn(ctx, e, id, up)
			if err != nil {
				return err
			}
			return printOutcome(out)
		})
	}
}

func workCreateCmd() *cobra.Command {
	var in engine.CreateWorkInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWork(ctx, currentActor(), in)
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
	cmd.Flags().Int64Var(&in.OwnerID, "owner", 0, "owner (student) id")
	cmd.Flags().StringVar(&in.ServiceType, "type", "individual", "individual or group")
	cmd.Flags().Int64Var(&in.ProgramID, "program", 0, "program id")
	cmd.Flags().Int64Var(&in.FacultyID, "faculty", 0, "faculty id")
	cmd.Flags().Int64Var(&in.InstructorID, "instructor", 0, "supervising instructor id")
	cmd.Flags().Int64Var(&in.LaborID, "labor", 0, "labor id")
	cmd.Flags().Int64Var(&in.ActionLineID, "action-line", 0, "action line id")
	cmd.Flags().StringSliceVar(&in.GroupEmails, "member", nil, "group member email (repeatable)")
	return cmd
}

func workListCmd() *cobra.Command {
	var f repo.WorkFilter
	var serviceType, planState, hasReport string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work selections",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ServiceType = domain.ServiceType(serviceType)
			f.PlanState = domain.PlanState(planState)
			if hasReport != "" {
				v, err := strconv.ParseBool(hasReport)
				if err != nil {
					return fmt.Errorf("--has-final-report must be true or false")
				}
				f.HasFinalReport = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Owner", "Type", "Plan", "Conformity", "Termination", "Report", "Finished"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.OwnerID, w.ServiceType, w.PlanState, w.ConformityValue(), w.TerminationRequest, w.FinalReportState, w.Finished()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&f.OwnerID, "owner", 0, "owner id")
	cmd.Flags().Int64Var(&f.InstructorID, "instructor", 0, "instructor id")
	cmd.Flags().Int64Var(&f.ProgramID, "program", 0, "program id")
	cmd.Flags().Int64Var(&f.FacultyID, "faculty", 0, "faculty id")
	cmd.Flags().StringVar(&serviceType, "type", "", "individual or group")
	cmd.Flags().StringVar(&planState, "plan-state", "", "pending, accepted or rejected")
	cmd.Flags().StringVar(&hasReport, "has-final-report", "", "true or false")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func workShowCmd() *cobra.Command {
	var owner bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work selection (by owner with --owner)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var w domain.WorkSelection
				if owner {
					w, err = e.GetWorkByOwner(ctx, id)
				} else {
					w, err = e.GetWork(ctx, id)
				}
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
	cmd.Flags().BoolVar(&owner, "owner", false, "treat the argument as an owner id")
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Plan document and conformity"}

	var file string
	upload := outcomeCmd("upload", "Upload the plan document", nil)
	upload.RunE = uploadRunner(&file, func(ctx context.Context, e engine.Engine, id int64, up engine.Upload) (engine.Outcome, error) {
		return e.UploadPlanDocument(ctx, currentActor(), id, up)
	})
	upload.Flags().StringVar(&file, "file", "", "document path")
	plan.AddCommand(upload)

	var verdict, reason string
	conformity := outcomeCmd("conformity", "Accept or reject the plan document", nil)
	conformity.RunE = verdictRunner(&verdict, func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.ResolvePlanConformity(ctx, currentActor(), id, domain.Conformity(verdict), reason)
	})
	conformity.Flags().StringVar(&verdict, "verdict", "", "accepted or rejected")
	conformity.Flags().StringVar(&reason, "reason", "", "rejection reason")
	plan.AddCommand(conformity)

	var declineReason string
	decline := outcomeCmd("decline", "Decline an accepted selection", func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.DeclineOrRestore(ctx, currentActor(), id, domain.PlanRejected, declineReason)
	})
	decline.Flags().StringVar(&declineReason, "reason", "", "reason (required)")
	plan.AddCommand(decline)

	var restoreReason string
	restore := outcomeCmd("restore", "Restore a declined selection", func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.DeclineOrRestore(ctx, currentActor(), id, domain.PlanAccepted, restoreReason)
	})
	restore.Flags().StringVar(&restoreReason, "reason", "", "reason (required)")
	plan.AddCommand(restore)
	return plan
}

func closeOutCmd() *cobra.Command {
	closeOut := &cobra.Command{Use: "close", Short: "Completion letter, final report and certificate"}

	closeOut.AddCommand(outcomeCmd("request", "Request the completion letter", func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.RequestCompletionLetter(ctx, currentActor(), id)
	}))

	var verdict string
	resolve := outcomeCmd("resolve", "Approve or reject the completion request", nil)
	resolve.RunE = verdictRunner(&verdict, func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.ResolveCompletionLetter(ctx, currentActor(), id, domain.TerminationState(verdict))
	})
	resolve.Flags().StringVar(&verdict, "verdict", "", "approved or rejected")
	closeOut.AddCommand(resolve)

	var letterFile, letterKind string
	letter := outcomeCmd("letter", "Replace the acceptance or completion letter", nil)
	letter.RunE = uploadRunner(&letterFile, func(ctx context.Context, e engine.Engine, id int64, up engine.Upload) (engine.Outcome, error) {
		return e.StoreLetter(ctx, currentActor(), id, domain.DocumentKind(letterKind), up)
	})
	letter.Flags().StringVar(&letterFile, "file", "", "document path")
	letter.Flags().StringVar(&letterKind, "kind", "acceptance", "acceptance or completion")
	closeOut.AddCommand(letter)

	var reportFile string
	report := outcomeCmd("report", "Submit the final report", nil)
	report.RunE = uploadRunner(&reportFile, func(ctx context.Context, e engine.Engine, id int64, up engine.Upload) (engine.Outcome, error) {
		return e.SubmitFinalReport(ctx, currentActor(), id, up)
	})
	report.Flags().StringVar(&reportFile, "file", "", "document path")
	closeOut.AddCommand(report)

	var state string
	reportState := outcomeCmd("report-state", "Set the final report verdict", nil)
	reportState.RunE = verdictRunner(&state, func(ctx context.Context, e engine.Engine, id int64) (engine.Outcome, error) {
		return e.SetFinalReportState(ctx, currentActor(), id, domain.ReportState(state))
	})
	reportState.Flags().StringVar(&state, "verdict", "", "pending, approved or rejected")
	closeOut.AddCommand(reportState)

	var certFile string
	cert := outcomeCmd("certificate", "Issue the certificate", nil)
	cert.RunE = uploadRunner(&certFile, func(ctx context.Context, e engine.Engine, id int64, up engine.Upload) (engine.Outcome, error) {
		return e.IssueCertificate(ctx, currentActor(), id, up)
	})
	cert.Flags().StringVar(&certFile, "file", "", "document path")
	closeOut.AddCommand(cert)
	return closeOut
}
