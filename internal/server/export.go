package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/xuri/excelize/v2"

	"github.com/callsift/callsift/internal/match"
	"github.com/callsift/callsift/internal/observe"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportColumns is the spreadsheet header row, in output order.
var exportColumns = []string{
	"project_id", "conversation_id", "builder_name",
	"category", "keyword", "speaker", "count", "matched_text",
}

// handleExportKeywords runs the containment strategy over a conversation's
// transcript and streams the hits as an .xlsx workbook, one row per
// (category, keyword, segment) hit.
func (s *Server) handleExportKeywords(c fiber.Ctx) error {
	conversationID, projectID, builderName, err := matchQuery(c)
	if err != nil {
		return err
	}

	ctx, span := observe.StartSpan(c.Context(), "match.export")
	defer span.End()

	observe.Logger(ctx).Info("exporting keyword matches",
		"conversation_id", conversationID,
		"project_id", projectID,
		"builder_name", builderName,
		"owner", requestOwner(c),
	)

	mc, err := s.loadMatchContext(c, conversationID, projectID, builderName)
	if err != nil || mc == nil {
		s.metrics.RecordMatchRequest(ctx, "containment", "rejected")
		return err
	}

	start := time.Now()
	records := s.matcher.MatchContainment(mc.trans.Segments, mc.keywords.Set)

	book, err := buildWorkbook(projectID, conversationID, builderName, records)
	if err != nil {
		s.metrics.RecordMatchRequest(ctx, "containment", "error")
		observe.Logger(ctx).Error("workbook generation failed", "error", err)
		return jsonError(c, http.StatusNotFound, apiError{
			Code:           errExportFailed,
			Message:        "Could not Generate Excel file for given conversation",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
			BuilderName:    builderName,
		})
	}

	s.metrics.ExportDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.SegmentsScanned.Add(ctx, int64(len(mc.trans.Segments)))
	s.metrics.RecordMatchRequest(ctx, "containment", "ok")

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition,
		`attachment; filename=matched_keywords_`+conversationID+`.xlsx`)
	return c.Send(book)
}

// buildWorkbook renders containment records into a single-sheet workbook.
func buildWorkbook(projectID int, conversationID, builderName string, records []match.ContainmentRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Matched Keywords"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, err
		}
	}

	for r, rec := range records {
		row := []any{
			projectID, conversationID, builderName,
			rec.Category, rec.Keyword, string(rec.Speaker), rec.Count, rec.MatchedText,
		}
		for i, v := range row {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
