package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/cms"
)

// AdminHandler exposes read access over stored submissions for the internal
// dashboard. Protected by a bearer token; not part of the public surface.
type AdminHandler struct {
	Store cms.ContentStore
}

func (h *AdminHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("/submissions", h.submissions)
}

func (h *AdminHandler) submissions(c echo.Context) error {
	kind := c.QueryParam("kind")
	switch kind {
	case "":
		kind = cms.KindContactSubmission
	case cms.KindContactSubmission, cms.KindSubscriber, cms.KindNewsletterSubscriber:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown kind")
	}

	limit := 25
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1-100")
		}
		limit = n
	}

	recs, err := h.Store.ListRecords(c.Request().Context(), kind, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	items := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		items = append(items, map[string]interface{}{
			"id":         r.ID,
			"kind":       r.Kind,
			"email":      r.Email,
			"name":       r.Name,
			"source":     r.Source,
			"fields":     r.Fields,
			"created_at": r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

// withAuth checks an HS256 bearer token signed with the admin secret.
func withAuth(next echo.HandlerFunc, secret []byte) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(secret) == 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin access not configured")
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !tok.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		if claims, ok := tok.Claims.(jwt.MapClaims); ok {
			if sub, _ := claims["sub"].(string); sub != "" {
				c.Set("user_id", sub)
			}
		}
		return next(c)
	}
}
