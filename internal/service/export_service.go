package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/competeiq/api/internal/model"
)

// XLSXContentType is the media type of exported workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportService renders analysis results as spreadsheets.
type ExportService struct {
	analysis *AnalysisService
}

func NewExportService(analysis *AnalysisService) *ExportService {
	return &ExportService{analysis: analysis}
}

// ExportAnalysis returns the workbook of a completed analysis and a file
// name for it.
func (s *ExportService) ExportAnalysis(ctx context.Context, analysisID string) ([]byte, string, error) {
	result, err := s.analysis.GetResult(ctx, analysisID)
	if err != nil {
		return nil, "", err
	}
	data, err := BuildWorkbook(result)
	if err != nil {
		return nil, "", err
	}
	name := "analysis"
	if result.Company != nil && result.Company.Name != "" {
		name = fileSafe(result.Company.Name)
	}
	return data, fmt.Sprintf("competeiq-%s-%s.xlsx", name, shortID(analysisID)), nil
}

// BuildWorkbook writes the Overview, Competitors, Trends and Positioning
// sheets.
func BuildWorkbook(result *model.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Reuse the default sheet so the overview stays first.
	_ = f.SetSheetName(f.GetSheetName(0), "Overview")
	for _, name := range []string{"Competitors", "Trends", "Positioning"} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4F46E5"}},
	})
	if err != nil {
		return nil, err
	}

	company, website := "", ""
	if result.Company != nil {
		company, website = result.Company.Name, result.Company.WebsiteURL
	}
	overview := [][]interface{}{
		{"Company", company},
		{"Website", website},
		{"Analysis ID", result.AnalysisID},
		{"Positioning strategy", result.PositioningStrategy},
		{"Competitors", len(result.Competitors)},
		{"Market trends", len(result.MarketTrends)},
	}
	if err := writeSheet(f, "Overview", []string{"Field", "Value"}, overview, header); err != nil {
		return nil, err
	}

	competitors := make([][]interface{}, len(result.Competitors))
	for i, c := range result.Competitors {
		competitors[i] = []interface{}{c.Name, c.Website, c.MarketShare, strings.Join(c.Strengths, "; "), strings.Join(c.Weaknesses, "; ")}
	}
	if err := writeSheet(f, "Competitors", []string{"Name", "Website", "Market share (%)", "Strengths", "Weaknesses"}, competitors, header); err != nil {
		return nil, err
	}

	trends := make([][]interface{}, len(result.MarketTrends))
	for i, t := range result.MarketTrends {
		trends[i] = []interface{}{t.Trend, t.Impact, t.Confidence}
	}
	if err := writeSheet(f, "Trends", []string{"Trend", "Impact", "Confidence (%)"}, trends, header); err != nil {
		return nil, err
	}

	var positioning [][]interface{}
	for _, g := range result.MarketGaps {
		positioning = append(positioning, []interface{}{"Market gap", g})
	}
	for _, a := range result.CompetitiveAdvantages {
		positioning = append(positioning, []interface{}{"Competitive advantage", a})
	}
	if err := writeSheet(f, "Positioning", []string{"Kind", "Item"}, positioning, header); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, len(headers), 24); err != nil {
		return err
	}

	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return err
	}
	for r, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func fileSafe(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "analysis"
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
