// Package export renders curated timelines for people: spreadsheets, review
// documents and terminal tables.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// Sheet names of the timeline workbook.
const (
	TimelineSheet = "Timeline"
	ClustersSheet = "Clusters"
)

var timelineHeaders = []string{
	"Date", "Entry", "Resolution", "Tier", "Title", "URL", "Cluster", "Notes",
}

var clusterHeaders = []string{"Cluster", "Dates", "Edges"}

// Timeline writes recs and clusters as an XLSX workbook to w. Records are
// written in the order given.
func Timeline(w io.Writer, recs []domain.DailyRecord, clusters []domain.Cluster) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", TimelineSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ClustersSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err = writeHeader(f, TimelineSheet, timelineHeaders, bold); err != nil {
		return err
	}
	if err = writeHeader(f, ClustersSheet, clusterHeaders, bold); err != nil {
		return err
	}

	for i := range recs {
		if err = writeRow(f, TimelineSheet, i+2, timelineRow(&recs[i])); err != nil {
			return err
		}
	}
	for i, c := range clusters {
		row := []any{c.ClusterID, strings.Join(c.MemberDates, ", "), len(c.MemberEdgeIDs)}
		if err = writeRow(f, ClustersSheet, i+2, row); err != nil {
			return err
		}
	}

	if err = f.SetColWidth(TimelineSheet, "B", "B", 80); err != nil {
		return fmt.Errorf("failed to size entry column: %w", err)
	}
	if err = f.SetColWidth(TimelineSheet, "E", "F", 40); err != nil {
		return fmt.Errorf("failed to size title columns: %w", err)
	}

	if err = f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to compute header range: %w", err)
	}
	if err = f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to compute cell name: %w", err)
	}
	if err = f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func timelineRow(rec *domain.DailyRecord) []any {
	var title, url string
	if doc, ok := rec.SelectedDocument(); ok {
		title, url = doc.Title, doc.URL
	}
	return []any{
		rec.Date,
		rec.GeneratedText,
		resolutionLabel(rec.ResolutionMode),
		string(rec.SelectedTier),
		title,
		url,
		rec.ClusterID,
		strings.Join(Notes(rec), "; "),
	}
}

func resolutionLabel(mode domain.ResolutionMode) string {
	if mode == domain.ModeUnresolved {
		return "Unresolved"
	}
	return string(mode)
}
