package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/revalidate"
)

// SignatureHeader carries the CMS's HMAC-SHA1 of the raw request body.
const SignatureHeader = "webhook-signature"

// WebhookHandler receives Storyblok publish/change notifications and
// triggers frontend cache invalidation for the affected pages.
type WebhookHandler struct {
	// Secret is the shared webhook secret. Empty disables verification
	// (open mode, for local development).
	Secret      string
	Revalidator revalidate.Revalidator
	Logger      *log.Logger
}

func (h *WebhookHandler) Register(g *echo.Group) {
	g.POST("/webhook/storyblok", h.handle)
}

type webhookStory struct {
	Slug     string `json:"slug"`
	FullSlug string `json:"full_slug"`
}

type webhookPayload struct {
	Story   *webhookStory  `json:"story"`
	Stories []webhookStory `json:"stories"`
	Action  string         `json:"action"`
}

func (h *WebhookHandler) handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}

	if h.Secret != "" {
		sig := c.Request().Header.Get(SignatureHeader)
		if sig == "" || !verifySignature(body, sig, h.Secret) {
			metrics.WebhookEvents.WithLabelValues("unauthorized").Inc()
			h.Logger.Printf("rejected webhook with bad signature from %s", c.RealIP())
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{"error": "invalid signature"})
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}

	stories := payload.Stories
	if payload.Story != nil {
		stories = append(stories, *payload.Story)
	}

	ctx := c.Request().Context()
	for _, story := range stories {
		if story.FullSlug == "" {
			continue
		}
		if err := h.invalidate(ctx, story); err != nil {
			metrics.WebhookEvents.WithLabelValues("error").Inc()
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		}
	}

	metrics.WebhookEvents.WithLabelValues("ok").Inc()
	h.Logger.Printf("revalidated %d stories (action=%s)", len(stories), payload.Action)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"revalidated": true,
		"now":         time.Now().UnixMilli(),
	})
}

// invalidate signals both channels: the story's own path, and its slug as a
// tag so any page embedding the story goes stale too. Blog posts also
// invalidate the listing page.
func (h *WebhookHandler) invalidate(ctx context.Context, story webhookStory) error {
	if err := h.Revalidator.RevalidatePath(ctx, "/"+story.FullSlug); err != nil {
		return err
	}
	if strings.HasPrefix(story.FullSlug, "blog/") {
		if err := h.Revalidator.RevalidatePath(ctx, "/blog"); err != nil {
			return err
		}
	}
	if story.Slug != "" {
		if err := h.Revalidator.RevalidateTag(ctx, story.Slug); err != nil {
			return err
		}
	}
	return nil
}

// verifySignature compares the provided hex HMAC-SHA1 against the body's,
// in constant time.
func verifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
