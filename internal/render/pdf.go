package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"socialservice/internal/domain"
)

// Saver persists rendered documents.
type Saver interface {
	Save(ctx context.Context, data []byte, suggestedName string) (string, error)
}

// PDF renders acceptance and completion letters.
type PDF struct {
	Files Saver
}

func (p PDF) Render(ctx context.Context, kind domain.DocumentKind, data domain.LetterData) (string, error) {
	title, body, err := letterText(kind, data)
	if err != nil {
		return "", err
	}
	doc, err := build(title, body, data)
	if err != nil {
		return "", err
	}
	return p.Files.Save(ctx, doc, fmt.Sprintf("%s_%d.pdf", kind, data.WorkID))
}

func letterText(kind domain.DocumentKind, data domain.LetterData) (string, []string, error) {
	lines := []string{
		fmt.Sprintf("Work selection: %d", data.WorkID),
		fmt.Sprintf("Student: %d", data.OwnerID),
		fmt.Sprintf("Program: %d   Faculty: %d", data.ProgramID, data.FacultyID),
		fmt.Sprintf("Supervising instructor: %d", data.InstructorID),
		fmt.Sprintf("Social labor: %d", data.LaborID),
	}
	if data.ServiceType == domain.ServiceGroup && len(data.Members) > 0 {
		lines = append(lines, "Group members: "+strings.Join(data.Members, ", "))
	}
	switch kind {
	case domain.DocAcceptanceLetter:
		lines = append(lines, "", "The social service plan submitted for this selection has been reviewed and accepted by the supervising instructor.")
		return "Plan Acceptance Letter", lines, nil
	case domain.DocCompletionLetter:
		lines = append(lines, "", "The student has completed the scheduled social service activities for this selection.")
		return "Completion Letter", lines, nil
	}
	return "", nil, fmt.Errorf("unknown document kind %q", kind)
}

func build(title string, lines []string, data domain.LetterData) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()
	if data.Institution != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 8, tr(data.Institution), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		if line == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 7, tr(line), "", "L", false)
	}
	pdf.Ln(8)
	pdf.CellFormat(0, 7, tr("Issued on "+data.IssuedOn), "", 1, "R", false, 0, "")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
