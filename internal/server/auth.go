package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/observe"
)

// ownerLocal is the request-locals key under which the authenticated key
// owner's name is stored.
const ownerLocal = "owner"

// touchTimeout bounds the background last-used update so a slow database
// cannot pile up goroutines.
const touchTimeout = 5 * time.Second

// requireAPIKey validates the X-API-Key header against the key store. The
// configured master key is accepted outside production. On success the key
// owner's name is placed in the request locals under [ownerLocal].
func (s *Server) requireAPIKey(c fiber.Ctx) error {
	token := c.Get("X-API-Key")
	if token == "" {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"detail": "API key missing"})
	}

	if s.cfg.Server.Environment != config.EnvProduction &&
		s.cfg.Auth.MasterKey != "" && token == s.cfg.Auth.MasterKey {
		observe.Logger(c.Context()).Info("access granted using master API key")
		c.Locals(ownerLocal, "master")
		return c.Next()
	}

	key, err := s.store.GetAPIKeyByToken(c.Context(), token)
	if err != nil {
		return err
	}
	if key == nil {
		observe.Logger(c.Context()).Warn("invalid API key attempt")
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"detail": "Invalid or inactive API key"})
	}

	// Last-used bookkeeping happens off the request path.
	go func(keyID string) {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.store.TouchAPIKey(ctx, keyID); err != nil {
			s.log.Warn("failed to update api key last_used", "key_id", keyID, "error", err)
		}
	}(key.KeyID)

	c.Locals(ownerLocal, key.OwnerName)
	return c.Next()
}

// requestOwner returns the authenticated key owner's name, or "anonymous"
// when auth is disabled.
func requestOwner(c fiber.Ctx) string {
	if owner, ok := c.Locals(ownerLocal).(string); ok && owner != "" {
		return owner
	}
	return "anonymous"
}

// newToken returns a fresh URL-safe secret of 32 random bytes.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
