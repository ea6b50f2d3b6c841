package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"perfhrm/internal/domain/evaluation"
)

func newStatusCommand() *cobra.Command {
	var periodID, employeeID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the derived step statuses of an employee, or of a whole period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if periodID == "" {
				return errors.New("--period is required")
			}
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			if employeeID == "" {
				board, err := app.Evaluation.PeriodStatusBoard(cmd.Context(), periodID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), board)
			}
			status, err := app.Evaluation.GetStatus(cmd.Context(), periodID, employeeID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "Evaluation period id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "Employee id; omit for the whole period")
	return cmd
}

func newRevisionsCommand() *cobra.Command {
	var (
		periodID, employeeID, step, recipientID string
		openOnly                                bool
	)
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List revision requests of a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if periodID == "" {
				return errors.New("--period is required")
			}
			filter := evaluation.RevisionFilter{PeriodID: periodID, EmployeeID: employeeID, RecipientID: recipientID}
			if step != "" {
				parsed, ok := evaluation.ParseStep(step)
				if !ok {
					return fmt.Errorf("unknown step %q", step)
				}
				filter.Step = parsed
			}
			if openOnly {
				completed := false
				filter.IsCompleted = &completed
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			requests, err := app.Evaluation.ListRevisionRequests(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), requests)
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "Evaluation period id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "Filter by employee id")
	cmd.Flags().StringVar(&step, "step", "", "Filter by step (criteria, self, primary, secondary)")
	cmd.Flags().StringVar(&recipientID, "recipient", "", "Filter by recipient id")
	cmd.Flags().BoolVar(&openOnly, "open", false, "Only requests that are not yet completed")
	return cmd
}

func newReportCommand() *cobra.Command {
	var periodID, outDir string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the period status board as a PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if periodID == "" {
				return errors.New("--period is required")
			}
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			if outDir == "" {
				outDir = app.Config.ReportDir
			}
			if outDir == "-" {
				return app.Evaluation.WriteStatusReport(cmd.Context(), periodID, os.Stdout)
			}
			path, err := app.Evaluation.SaveStatusReport(cmd.Context(), periodID, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "Evaluation period id")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default REPORT_DIR, '-' for stdout)")
	return cmd
}
