package server

import "github.com/gofiber/fiber/v3"

// Stable error codes carried over from the first version of this API.
// Clients key off these strings, so they must not change.
const (
	errConversationNotFound = "ERR-1001" // conversation ID unknown
	errProjectMismatch      = "ERR-1002" // project does not correspond to the conversation
	errBuilderMismatch      = "ERR-1003" // project has no such builder name
	errTranscriptionMissing = "ERR-1004" // no transcription for the conversation
	errKeywordsMissing      = "ERR-1005" // no keyword set for (project, builder)
	errProjectBuilderPair   = "ERR-1006" // builder name and project ID do not match
	errExportFailed         = "ERR-1007" // spreadsheet generation failed
)

// apiError is the historical error envelope. The capitalised, space-separated
// JSON keys are part of the wire contract.
type apiError struct {
	Code           string `json:"Error code"`
	Message        string `json:"Error message"`
	ConversationID string `json:"Conversation Id,omitempty"`
	ProjectID      string `json:"Project id,omitempty"`
	BuilderName    string `json:"Builder Name,omitempty"`
}

// jsonError writes an [apiError] with the given HTTP status.
func jsonError(c fiber.Ctx, status int, e apiError) error {
	return c.Status(status).JSON(e)
}
