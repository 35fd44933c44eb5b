package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/dispatch"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/validate"
)

// NewsletterHandler serves the three newsletter signup surfaces. They share
// the quota and the welcome email but differ in backend and strictness:
//
//   - /newsletter (blog): Ghost members, duplicates are non-fatal
//   - /subscribe (homepage): Storyblok with an existence pre-check
//   - /footer-subscribe: Storyblok, honeypot plus spam heuristics
type NewsletterHandler struct {
	Ghost     cms.ContentStore
	Storyblok cms.ContentStore
	Mailer    mail.Mailer
	Limiter   *ratelimit.Limiter
	From      string
	Logger    *log.Logger
}

func (h *NewsletterHandler) Register(g *echo.Group) {
	g.POST("/newsletter", h.blog)
	g.POST("/subscribe", h.homepage)
	g.POST("/footer-subscribe", h.footer)
}

func (h *NewsletterHandler) blog(c echo.Context) error {
	return h.subscribe(c, "newsletter", "blog_newsletter", h.Ghost, cms.KindNewsletterSubscriber, nil)
}

func (h *NewsletterHandler) homepage(c echo.Context) error {
	return h.subscribe(c, "subscribe", "homepage_form", h.Storyblok, cms.KindSubscriber, &subscribeOpts{existenceCheck: true})
}

func (h *NewsletterHandler) footer(c echo.Context) error {
	return h.subscribe(c, "footer_subscribe", "footer_form", h.Storyblok, cms.KindNewsletterSubscriber, &subscribeOpts{
		honeypot:       true,
		spamHeuristics: true,
	})
}

type subscribeOpts struct {
	existenceCheck bool
	honeypot       bool
	spamHeuristics bool
}

func (h *NewsletterHandler) subscribe(c echo.Context, endpoint, defaultSource string, store cms.ContentStore, kind string, opts *subscribeOpts) error {
	if opts == nil {
		opts = &subscribeOpts{}
	}

	client, allowed, err := gate(c, h.Limiter, endpoint)
	if !allowed {
		return err
	}

	var req SubscribeRequest
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
	if opts.spamHeuristics {
		if err := validate.Suspicious(req.Email); err != nil {
			return badRequest(c, endpoint, "email rejected")
		}
	}

	// A filled honeypot means a bot. Answer exactly like a real success so
	// the bot can't tell it was dropped; no write, no email, no quota.
	if opts.honeypot && req.Honeypot != "" {
		metrics.Submissions.WithLabelValues(endpoint, "honeypot").Inc()
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
	}

	source := req.Source
	if source == "" {
		source = defaultSource
	}

	steps := []dispatch.Step{}
	if opts.existenceCheck {
		steps = append(steps, dispatch.ExistenceCheck(store))
	}
	steps = append(steps,
		dispatch.CreateRecord(store, h.Logger),
		dispatch.SendEmail(h.Mailer, func(st *dispatch.State) mail.Message {
			return mail.WelcomeEmail(h.From, st.Record.Email)
		}, h.Logger),
		dispatch.RecordQuota(h.Limiter, h.Logger),
	)

	st := &dispatch.State{
		Endpoint: endpoint,
		ClientID: client,
		Record: cms.Record{
			Kind:   kind,
			Key:    cms.Slugify(req.Email),
			Email:  req.Email,
			Source: source,
		},
	}
	p := &dispatch.Pipeline{Logger: h.Logger, Steps: steps}
	code, body, err := p.Run(c.Request().Context(), st)
	if err != nil {
		return dispatchError(c, h.Logger, endpoint, err)
	}
	if body["message"] == "already subscribed" {
		metrics.Submissions.WithLabelValues(endpoint, "already_subscribed").Inc()
	} else {
		metrics.Submissions.WithLabelValues(endpoint, "accepted").Inc()
	}
	return c.JSON(code, body)
}
