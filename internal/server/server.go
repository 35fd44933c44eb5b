// Package server wires the HTTP surface of the forms service: the public
// form endpoints, the CMS webhook receiver and the admin read API.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joaodesousa/outplay-forms/config"
	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/revalidate"
)

// Run builds the dependency graph from cfg and serves until the listener
// fails. addr overrides the configured listen address when non-empty.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging.
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Rate-limit store: process-local by default, redis when the quota has
	// to hold across instances.
	var rlStore ratelimit.Store
	if cfg.RateLimit.Store == "redis" {
		rdb, err := ratelimit.Conn(context.Background(), cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err != nil {
			return err
		}
		rlStore = ratelimit.NewRedisStore(rdb)
	} else {
		rlStore = ratelimit.NewMemoryStore(cfg.RateLimit.Window)
	}
	newsletterLimiter := ratelimit.New(rlStore, cfg.RateLimit.Window, cfg.RateLimit.NewsletterMax)
	contactLimiter := ratelimit.New(rlStore, cfg.RateLimit.Window, cfg.RateLimit.ContactMax)

	storyblok := cms.NewStoryblok(cfg.Storyblok)
	ghost := cms.NewGhost(cfg.Ghost)
	resend := mail.NewResend(cfg.Resend)
	dispatchLogger := log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags)

	api := e.Group("/api")

	nh := &NewsletterHandler{
		Ghost:     ghost,
		Storyblok: storyblok,
		Mailer:    resend,
		Limiter:   newsletterLimiter,
		From:      cfg.Resend.From,
		Logger:    dispatchLogger,
	}
	nh.Register(api)

	ch := &ContactHandler{
		Store:      storyblok,
		Mailer:     resend,
		Limiter:    contactLimiter,
		From:       cfg.Resend.From,
		AdminEmail: cfg.Resend.AdminEmail,
		Logger:     dispatchLogger,
	}
	ch.Register(api)

	mh := &MailingListHandler{Contacts: resend}
	mh.Register(api)

	wh := &WebhookHandler{
		Secret:      cfg.Webhook.Secret,
		Revalidator: revalidate.NewHTTP(cfg.Revalidate),
		Logger:      log.New(log.Writer(), "[WEBHOOK] ", log.LstdFlags),
	}
	wh.Register(api)

	ah := &AdminHandler{Store: storyblok}
	ah.Register(api.Group("/admin"), []byte(cfg.Admin.JWTSecret))

	if addr == "" {
		addr = cfg.General.Listen
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// clientID identifies the submitter for rate limiting. The forwarded
// header is taken verbatim and is spoofable; missing means every
// anonymized client shares the "unknown" bucket. Both are accepted
// limitations of this scheme, not bugs.
func clientID(c echo.Context) string {
	if v := c.Request().Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	return "unknown"
}
