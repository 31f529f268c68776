package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/callsift/callsift/internal/store"
)

// createKeyPayload is the body of POST /keys.
type createKeyPayload struct {
	OwnerName   string `json:"owner_name"`
	OwnerEmail  string `json:"owner_email"`
	Description string `json:"description"`
}

// handleCreateKey issues a new API key. The secret token is returned exactly
// once, in this response; afterwards only the key metadata is retrievable.
func (s *Server) handleCreateKey(c fiber.Ctx) error {
	var payload createKeyPayload
	if err := c.Bind().JSON(&payload); err != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, "invalid JSON body")
	}
	if payload.OwnerName == "" {
		return fiber.NewError(http.StatusUnprocessableEntity, "owner_name is required")
	}

	token, err := newToken()
	if err != nil {
		return err
	}

	key := &store.APIKey{
		KeyID:       uuid.NewString(),
		Key:         token,
		OwnerName:   payload.OwnerName,
		OwnerEmail:  payload.OwnerEmail,
		Description: payload.Description,
		IsActive:    true,
	}
	if err := s.store.CreateAPIKey(c.Context(), key); err != nil {
		return err
	}

	s.log.Info("api key created", "key_id", key.KeyID, "owner", key.OwnerName)

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"key_id":     key.KeyID,
		"api_key":    token,
		"owner_name": key.OwnerName,
	})
}

// handleListKeys lists all API keys without their secret tokens.
func (s *Server) handleListKeys(c fiber.Ctx) error {
	keys, err := s.store.ListAPIKeys(c.Context())
	if err != nil {
		return err
	}
	if keys == nil {
		keys = []store.APIKey{}
	}
	return c.Status(http.StatusOK).JSON(keys)
}

// handleSetKeyActive returns a handler that activates or deactivates the key
// named by the :id route parameter.
func (s *Server) handleSetKeyActive(active bool) fiber.Handler {
	verb := "deactivated"
	if active {
		verb = "activated"
	}

	return func(c fiber.Ctx) error {
		keyID := c.Params("id")

		err := s.store.SetAPIKeyActive(c.Context(), keyID, active)
		if errors.Is(err, store.ErrKeyNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"detail": "API key not found"})
		}
		if err != nil {
			return err
		}

		s.log.Info("api key state changed", "key_id", keyID, "active", active)

		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message": "API key " + keyID + " " + verb + " successfully",
		})
	}
}
