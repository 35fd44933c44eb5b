package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

// gate checks the submitter's quota. It returns the client id and whether
// the request may proceed; when blocked, the 429 response has already been
// written.
func gate(c echo.Context, lim *ratelimit.Limiter, endpoint string) (string, bool, error) {
	client := clientID(c)
	ok, err := lim.Allow(c.Request().Context(), client)
	if err != nil {
		return client, false, echo.NewHTTPError(http.StatusInternalServerError, "rate limit check failed")
	}
	if !ok {
		metrics.Submissions.WithLabelValues(endpoint, "rate_limited").Inc()
		return client, false, c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error": "rate limit exceeded, try again later",
		})
	}
	return client, true, nil
}

// dispatchError converts a pipeline failure into the generic 500 response,
// attaching the upstream message as details when one is available.
func dispatchError(c echo.Context, logger *log.Logger, endpoint string, err error) error {
	metrics.Submissions.WithLabelValues(endpoint, "upstream_error").Inc()
	logger.Printf("%s: dispatch failed: %v", endpoint, err)
	body := map[string]interface{}{"error": "submission failed"}
	if ue, ok := upstream.AsError(err); ok && ue.Message != "" {
		body["details"] = ue.Message
	}
	return c.JSON(http.StatusInternalServerError, body)
}

func badRequest(c echo.Context, endpoint, msg string) error {
	metrics.Submissions.WithLabelValues(endpoint, "validation_error").Inc()
	return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": msg})
}
