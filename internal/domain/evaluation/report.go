package evaluation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WriteStatusReport renders the period board as a PDF into w.
func (s *Service) WriteStatusReport(ctx context.Context, periodID string, w io.Writer) error {
	board, err := s.PeriodStatusBoard(ctx, periodID)
	if err != nil {
		return err
	}
	return renderStatusBoard(board, periodID, s.now()).Output(w)
}

// SaveStatusReport writes the period board PDF under dir and returns its path.
func (s *Service) SaveStatusReport(ctx context.Context, periodID, dir string) (string, error) {
	board, err := s.PeriodStatusBoard(ctx, periodID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	now := s.now()
	filePath := filepath.Join(dir, fmt.Sprintf("evaluation-status-%s-%s.pdf", filepath.Base(periodID), now.Format("20060102T150405")))
	if err := renderStatusBoard(board, periodID, now).OutputFileAndClose(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

var reportColumns = []struct {
	title string
	width float64
}{
	{"Employee", 50},
	{"Criteria", 45},
	{"Self", 45},
	{"Primary", 45},
	{"Secondary", 45},
	{"Evaluators", 47},
}

func renderStatusBoard(board []EmployeeStatus, periodID string, generatedAt time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Evaluation status")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s", periodID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Generated: %s", generatedAt.Format("2006-01-02 15:04 MST")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	for _, col := range reportColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, status := range board {
		cells := []string{
			status.EmployeeID,
			progressLabel(status.CriteriaSetup),
			progressLabel(status.SelfEvaluation),
			progressLabel(status.PrimaryEvaluation),
			string(status.SecondaryEvaluation.Aggregate),
			fmt.Sprintf("%d", len(status.SecondaryEvaluation.Evaluators)),
		}
		for i, col := range reportColumns {
			pdf.CellFormat(col.width, 7, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(board) == 0 {
		pdf.Cell(0, 8, "No employees have assignments in this period.")
	}
	return pdf
}

func progressLabel(p StepProgress) string {
	if p.AssignedCount == 0 {
		return string(p.Status)
	}
	return fmt.Sprintf("%s (%d/%d)", p.Status, p.CompletedCount, p.AssignedCount)
}
