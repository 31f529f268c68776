package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/callsift/callsift/internal/keywords"
	"github.com/callsift/callsift/internal/observe"
	"github.com/callsift/callsift/internal/store"
)

// replacePayload is the body of POST /keywords/replace: a flat list of
// (category, keyword) pairs.
type replacePayload struct {
	Keywords []keywords.Item `json:"keywords"`
}

// keywordsQuery parses the (project_id, builder_name) pair shared by the
// keyword endpoints.
func keywordsQuery(c fiber.Ctx) (projectID int, builderName string, err error) {
	builderName = strings.TrimSpace(c.Query("builder_name"))
	rawProject := c.Query("project_id")
	if builderName == "" || rawProject == "" {
		return 0, "", fiber.NewError(http.StatusUnprocessableEntity, "project_id and builder_name are required")
	}
	projectID, convErr := strconv.Atoi(rawProject)
	if convErr != nil {
		return 0, "", fiber.NewError(http.StatusUnprocessableEntity, "project_id must be an integer")
	}
	return projectID, builderName, nil
}

// handleReplaceKeywords replaces the keyword set for a (project, builder)
// pair. The builder name must match the project exactly; the replacement is
// an upsert keyed on the pair.
func (s *Server) handleReplaceKeywords(c fiber.Ctx) error {
	projectID, builderName, err := keywordsQuery(c)
	if err != nil {
		return err
	}

	var payload replacePayload
	if err := c.Bind().JSON(&payload); err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "invalid JSON body")
	}

	ctx := c.Context()
	log := observe.Logger(ctx)

	project, err := s.store.GetProjectByBuilder(ctx, projectID, builderName)
	if err != nil {
		return err
	}
	if project == nil {
		return jsonError(c, http.StatusNotFound, apiError{
			Code:        errProjectBuilderPair,
			Message:     "Builder Name and Project_Id Does't not Match",
			ProjectID:   strconv.Itoa(projectID),
			BuilderName: builderName,
		})
	}

	set := keywords.BuildSet(payload.Keywords)

	for _, d := range keywords.NearDuplicates(set) {
		log.Warn("near-duplicate keywords in category",
			"category", d.Category,
			"a", d.A,
			"b", d.B,
			"similarity", d.Similarity,
		)
	}

	rec := &store.KeywordRecord{
		ProjectID:   projectID,
		BuilderName: builderName,
		Set:         set,
		UpdatedBy:   requestOwner(c),
	}
	if err := s.store.ReplaceKeywords(ctx, rec); err != nil {
		return err
	}

	log.Info("keywords replaced",
		"project_id", projectID,
		"builder_name", builderName,
		"categories", len(set),
		"keywords", keywords.Count(set),
	)

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":          "Keywords successfully replaced.",
		"total_categories": len(set),
		"total_keywords":   keywords.Count(set),
	})
}

// handleGetKeywords returns the stored keyword set for a (project, builder)
// pair. The categories come back as an ordered array, not a JSON object, so
// the stored order survives the round trip.
func (s *Server) handleGetKeywords(c fiber.Ctx) error {
	projectID, builderName, err := keywordsQuery(c)
	if err != nil {
		return err
	}

	rec, err := s.store.GetKeywords(c.Context(), projectID, builderName)
	if err != nil {
		return err
	}
	if rec == nil {
		return jsonError(c, http.StatusNotFound, apiError{
			Code:        errKeywordsMissing,
			Message:     "Keyword not found for this given project and builder",
			ProjectID:   strconv.Itoa(projectID),
			BuilderName: builderName,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"project_id":           projectID,
		"builder_name":         builderName,
		"keywords_by_category": rec.Set,
	})
}
