package server

import (
	"log"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/convo"
	"github.com/joaodesousa/outplay-forms/internal/dispatch"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/validate"
)

// ContactHandler serves the guided contact form. The frontend submits the
// whole Q&A transcript; structured fields are pulled out of it here.
type ContactHandler struct {
	Store      cms.ContentStore
	Mailer     mail.Mailer
	Limiter    *ratelimit.Limiter
	From       string
	AdminEmail string
	Logger     *log.Logger
}

func (h *ContactHandler) Register(g *echo.Group) {
	g.POST("/contact", h.submit)
}

func (h *ContactHandler) submit(c echo.Context) error {
	const endpoint = "contact"

	client, allowed, err := gate(c, h.Limiter, endpoint)
	if !allowed {
		return err
	}

	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, endpoint, "invalid request body")
	}
	if len(req.Conversation) == 0 {
		return badRequest(c, endpoint, "conversation is required")
	}

	info := convo.Extract(req.Conversation)

	// The transcript is the canonical email source when the request body
	// carries none.
	email := req.Email
	if email == "" {
		email = info.Email
	}
	if err := validate.Email(email); err != nil {
		switch err {
		case validate.ErrMissingEmail:
			return badRequest(c, endpoint, "email is required")
		default:
			return badRequest(c, endpoint, "invalid email format")
		}
	}

	source := req.Source
	if source == "" {
		source = "contact_form"
	}

	fields := map[string]string{"reference_id": uuid.NewString()}
	for k, v := range map[string]string{
		"topic":     info.Topic,
		"challenge": info.Challenge,
		"obstacle":  info.Obstacle,
	} {
		if v != "" {
			fields[k] = v
		}
	}

	st := &dispatch.State{
		Endpoint: endpoint,
		ClientID: client,
		Record: cms.Record{
			Kind:   cms.KindContactSubmission,
			Key:    cms.Slugify(email),
			Email:  email,
			Name:   info.Name,
			Source: source,
			Fields: fields,
		},
	}

	p := &dispatch.Pipeline{Logger: h.Logger, Steps: []dispatch.Step{
		dispatch.CreateRecord(h.Store, h.Logger),
		dispatch.SendEmail(h.Mailer, func(st *dispatch.State) mail.Message {
			alert := map[string]string{
				"name":   st.Record.Name,
				"email":  st.Record.Email,
				"source": st.Record.Source,
			}
			for k, v := range st.Record.Fields {
				alert[k] = v
			}
			return mail.ContactAlertEmail(h.From, h.AdminEmail, alert)
		}, h.Logger),
		dispatch.RecordQuota(h.Limiter, h.Logger),
	}}

	code, body, err := p.Run(c.Request().Context(), st)
	if err != nil {
		return dispatchError(c, h.Logger, endpoint, err)
	}
	metrics.Submissions.WithLabelValues(endpoint, "accepted").Inc()
	return c.JSON(code, body)
}
