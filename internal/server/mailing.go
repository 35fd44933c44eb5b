package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
	"github.com/joaodesousa/outplay-forms/internal/validate"
)

// ContactList is the slice of the email vendor the mailing-list endpoint
// needs: adding one contact to the configured audience.
type ContactList interface {
	AddContact(ctx context.Context, email string) (string, error)
}

// MailingListHandler forwards generic subscribe requests straight to the
// external mailing-list vendor. No rate limiting, no content-store write:
// the vendor owns the list and its own dedupe.
type MailingListHandler struct {
	Contacts ContactList
}

func (h *MailingListHandler) Register(g *echo.Group) {
	g.POST("/mailing-list", h.subscribe)
}

func (h *MailingListHandler) subscribe(c echo.Context) error {
	const endpoint = "mailing_list"

	var req MailingListRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, endpoint, "invalid request body")
	}
	if err := validate.Email(req.Email); err != nil {
		switch err {
		case validate.ErrMissingEmail:
			return badRequest(c, endpoint, "email is required")
		default:
			return badRequest(c, endpoint, "invalid email format")
		}
	}

	id, err := h.Contacts.AddContact(c.Request().Context(), req.Email)
	if err != nil {
		// The vendor's verdict is passed through rather than masked;
		// from this service's point of view it is a bad gateway.
		if ue, ok := upstream.AsError(err); ok && ue.StatusCode > 0 {
			metrics.Submissions.WithLabelValues(endpoint, "vendor_rejected").Inc()
			return c.JSON(http.StatusBadGateway, map[string]interface{}{
				"error":         "mailing list vendor rejected the request",
				"vendor_status": ue.StatusCode,
				"details":       ue.Message,
			})
		}
		metrics.Submissions.WithLabelValues(endpoint, "upstream_error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "subscription failed"})
	}

	metrics.Submissions.WithLabelValues(endpoint, "accepted").Inc()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "subscribed",
		"id":      id,
	})
}
