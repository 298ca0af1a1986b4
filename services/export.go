package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
)

const (
	ExportJSON = "json"
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

var exportHeader = []string{
	"student_id", "student_name", "student_email", "batch",
	"kind", "title", "status",
	"points", "max_points", "percentage",
	"is_late", "late_penalty", "submitted_at", "graded_at",
}

func ValidExportFormat(f string) bool {
	return f == ExportJSON || f == ExportCSV || f == ExportXLSX
}

// ExportFilename is <course-code>-<course-title>-<yyyymmdd>.<ext>, slugged.
func ExportFilename(code, title string, now time.Time, format string) string {
	return fmt.Sprintf("%s-%s.%s", slug.Make(code+" "+title), now.Format("20060102"), format)
}

func (r ExportRow) record() []string {
	return []string{
		r.StudentID.String(),
		r.StudentName,
		r.StudentEmail,
		r.Batch,
		r.Kind,
		r.Title,
		r.Status,
		formatFloat(r.Points),
		formatFloat(r.MaxPoints),
		formatFloat(r.Percentage),
		strconv.FormatBool(r.IsLate),
		formatFloat(r.LatePenalty),
		formatTime(r.SubmittedAt),
		formatTime(r.GradedAt),
	}
}

func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders rows into a single-sheet workbook. Numeric columns stay
// numeric so spreadsheets can aggregate them.
func WriteXLSX(w io.Writer, sheet string, rows []ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Submissions"
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.StudentID.String(), r.StudentName, r.StudentEmail, r.Batch,
			r.Kind, r.Title, r.Status,
			r.Points, r.MaxPoints, r.Percentage,
			r.IsLate, r.LatePenalty, formatTime(r.SubmittedAt), formatTime(r.GradedAt),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
