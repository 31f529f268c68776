package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/callsift/callsift/internal/match"
	"github.com/callsift/callsift/internal/observe"
)

// matchResponse mirrors the historical fuzzy report shape, including the
// odd capitalisation of matched_Keywords.
type matchResponse struct {
	Status          string          `json:"status"`
	AgentID         string          `json:"agent_id"`
	ConversationID  string          `json:"conversation_id"`
	ProjectID       int             `json:"project_id"`
	BuilderName     string          `json:"builder_name"`
	MatchedKeywords match.Report    `json:"matched_Keywords"`
	DiarizedText    []match.Segment `json:"diarized_text"`
	AgentSpeaker    string          `json:"agent_speaker"`
	CustomerSpeaker string          `json:"customer_speaker"`
}

// matchQuery parses the common query parameters of the match endpoints.
func matchQuery(c fiber.Ctx) (conversationID string, projectID int, builderName string, err error) {
	conversationID = c.Query("conversation_id")
	builderName = strings.TrimSpace(c.Query("builder_name"))
	rawProject := c.Query("project_id")
	if conversationID == "" || builderName == "" || rawProject == "" {
		return "", 0, "", fiber.NewError(http.StatusUnprocessableEntity,
			"conversation_id, project_id and builder_name are required")
	}
	projectID, convErr := strconv.Atoi(rawProject)
	if convErr != nil {
		return "", 0, "", fiber.NewError(http.StatusUnprocessableEntity, "project_id must be an integer")
	}
	return conversationID, projectID, builderName, nil
}

// handleMatchKeywords runs the fuzzy matching strategy over a conversation's
// diarized transcript and returns the per-category, per-keyword report.
func (s *Server) handleMatchKeywords(c fiber.Ctx) error {
	conversationID, projectID, builderName, err := matchQuery(c)
	if err != nil {
		return err
	}

	ctx, span := observe.StartSpan(c.Context(), "match.keywords")
	defer span.End()

	log := observe.Logger(ctx)
	log.Info("matching keywords",
		"conversation_id", conversationID,
		"project_id", projectID,
		"builder_name", builderName,
		"owner", requestOwner(c),
	)

	mc, err := s.loadMatchContext(c, conversationID, projectID, builderName)
	if err != nil || mc == nil {
		s.metrics.RecordMatchRequest(ctx, "fuzzy", "rejected")
		return err
	}

	start := time.Now()
	report := s.matcher.Match(mc.trans.Segments, mc.keywords.Set)
	s.metrics.MatchDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.SegmentsScanned.Add(ctx, int64(len(mc.trans.Segments)))
	s.metrics.RecordMatchRequest(ctx, "fuzzy", "ok")
	s.recordReportHits(ctx, report)

	return c.Status(http.StatusOK).JSON(matchResponse{
		Status:          "success",
		AgentID:         mc.conversation.AgentID,
		ConversationID:  mc.conversation.ConversationID,
		ProjectID:       mc.project.ID,
		BuilderName:     mc.project.BuilderName,
		MatchedKeywords: report,
		DiarizedText:    mc.trans.Segments,
		AgentSpeaker:    s.cfg.Matching.AgentSpeaker,
		CustomerSpeaker: s.cfg.Matching.CustomerSpeaker,
	})
}

// recordReportHits feeds the per-role hit counts of a fuzzy report into the
// keyword-hit counter.
func (s *Server) recordReportHits(ctx context.Context, report match.Report) {
	var agent, customer int64
	for _, cat := range report {
		for _, kw := range cat.Keywords {
			agent += int64(kw.CountBySpeaker.Agent.Count)
			customer += int64(kw.CountBySpeaker.Customer.Count)
		}
	}
	s.metrics.RecordKeywordHits(ctx, string(match.RoleAgent), agent)
	s.metrics.RecordKeywordHits(ctx, string(match.RoleCustomer), customer)
}

// handleGetBuilder resolves the builder name owning a conversation's project.
func (s *Server) handleGetBuilder(c fiber.Ctx) error {
	conversationID := c.Query("conversation_id")
	rawProject := c.Query("project_id")
	if conversationID == "" || rawProject == "" {
		return fiber.NewError(http.StatusUnprocessableEntity, "conversation_id and project_id are required")
	}
	projectID, err := strconv.Atoi(rawProject)
	if err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "project_id must be an integer")
	}

	ctx := c.Context()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return jsonError(c, http.StatusNotFound, apiError{
			Code:           errConversationNotFound,
			Message:        "Conversation Id does not exist for the given project",
			ConversationID: conversationID,
		})
	}
	if conv.ProjectID != projectID {
		return jsonError(c, http.StatusNotFound, apiError{
			Code:           errProjectMismatch,
			Message:        "Project Id not Match For This Conversation",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
		})
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return jsonError(c, http.StatusNotFound, apiError{
			Code:           errProjectMismatch,
			Message:        "The provided project ID doesn't correspond to this conversation.",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"project_id":   project.ID,
		"builder_name": project.BuilderName,
	})
}
