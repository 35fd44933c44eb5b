package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
)

var testLogger = log.New(io.Discard, "", 0)

// stubStore is an in-memory ContentStore tracking call counts.
type stubStore struct {
	records []cms.Record
	creates int
	finds   int
	nextID  int
	fail    error
}

func (s *stubStore) CreateRecord(_ context.Context, rec cms.Record) (string, error) {
	s.creates++
	if s.fail != nil {
		return "", s.fail
	}
	s.nextID++
	rec.ID = "rec-" + string(rune('0'+s.nextID))
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *stubStore) FindByEmail(_ context.Context, kind, email string) (*cms.Record, error) {
	s.finds++
	for i := range s.records {
		if s.records[i].Email == email && s.records[i].Kind == kind {
			return &s.records[i], nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListRecords(_ context.Context, kind string, limit int) ([]cms.Record, error) {
	return s.records, nil
}

type stubMailer struct {
	sends int
	last  mail.Message
	err   error
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	m.sends++
	m.last = msg
	return m.err
}

func newTestNewsletterHandler(max int) (*NewsletterHandler, *stubStore, *stubMailer) {
	store := &stubStore{}
	mailer := &stubMailer{}
	h := &NewsletterHandler{
		Ghost:     store,
		Storyblok: store,
		Mailer:    mailer,
		Limiter:   ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, max),
		From:      "hello@outplay.pt",
		Logger:    testLogger,
	}
	return h, store, mailer
}

func postJSON(e *echo.Echo, path, body, forwardedFor string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestNewsletterSubscribeSuccess(t *testing.T) {
	e := echo.New()
	h, store, mailer := newTestNewsletterHandler(3)

	ctx, rec := postJSON(e, "/api/newsletter", `{"email":"ada@example.com"}`, "9.9.9.9")
	if err := h.blog(ctx); err != nil {
		t.Fatalf("blog: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true || body["id"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
	if store.creates != 1 || mailer.sends != 1 {
		t.Fatalf("expected one write and one email, got %d/%d", store.creates, mailer.sends)
	}
	if store.records[0].Source != "blog_newsletter" {
		t.Fatalf("expected default source, got %q", store.records[0].Source)
	}
}

func TestNewsletterMissingEmail(t *testing.T) {
	e := echo.New()
	h, store, _ := newTestNewsletterHandler(3)

	ctx, rec := postJSON(e, "/api/newsletter", `{}`, "9.9.9.9")
	if err := h.blog(ctx); err != nil {
		t.Fatalf("blog: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if store.creates != 0 {
		t.Fatalf("no write expected on validation failure")
	}
}

func TestNewsletterInvalidEmail(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestNewsletterHandler(3)

	for _, email := range []string{"nope", "a@b", "user@domain,com"} {
		ctx, rec := postJSON(e, "/api/newsletter", `{"email":"`+email+`"}`, "9.9.9.9")
		if err := h.blog(ctx); err != nil {
			t.Fatalf("blog: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("email %q: expected 400, got %d", email, rec.Code)
		}
	}
}

// Four submissions inside one window from the same client: the quota of 3
// admits the first three and rejects the fourth.
func TestNewsletterRateLimitEndToEnd(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestNewsletterHandler(3)

	want := []int{200, 200, 200, 429}
	for i, expected := range want {
		ctx, rec := postJSON(e, "/api/newsletter", `{"email":"user@test.com","source":"blog_newsletter"}`, "7.7.7.7")
		if err := h.blog(ctx); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
		if rec.Code != expected {
			t.Fatalf("submission %d: expected %d, got %d", i+1, expected, rec.Code)
		}
	}

	// A different client is unaffected.
	ctx, rec := postJSON(e, "/api/newsletter", `{"email":"user@test.com"}`, "8.8.8.8")
	if err := h.blog(ctx); err != nil {
		t.Fatalf("other client: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("other client should pass, got %d", rec.Code)
	}
}

func TestNewsletterMissingForwardedHeaderSharesBucket(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestNewsletterHandler(1)

	ctx, rec := postJSON(e, "/api/newsletter", `{"email":"a@b.cd"}`, "")
	_ = h.blog(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("first anonymous submission should pass, got %d", rec.Code)
	}

	// Different "client", still no header: same "unknown" bucket.
	ctx, rec = postJSON(e, "/api/newsletter", `{"email":"x@y.zw"}`, "")
	_ = h.blog(ctx)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("anonymous clients share one bucket; expected 429, got %d", rec.Code)
	}
}

// Second subscribe with the existence check enabled: "already subscribed",
// exactly one record, no second welcome email.
func TestHomepageSubscribeIdempotent(t *testing.T) {
	e := echo.New()
	h, store, mailer := newTestNewsletterHandler(3)

	ctx, rec := postJSON(e, "/api/subscribe", `{"email":"ada@example.com"}`, "9.9.9.9")
	if err := h.homepage(ctx); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("first subscribe: expected 200, got %d", rec.Code)
	}

	ctx, rec = postJSON(e, "/api/subscribe", `{"email":"ada@example.com"}`, "9.9.9.9")
	if err := h.homepage(ctx); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("second subscribe: expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "already subscribed" {
		t.Fatalf("expected already subscribed, got %v", body)
	}
	if store.creates != 1 {
		t.Fatalf("expected exactly one record, got %d creates", store.creates)
	}
	if mailer.sends != 1 {
		t.Fatalf("expected exactly one welcome email, got %d", mailer.sends)
	}
}

// A filled honeypot answers like a success but touches nothing.
func TestFooterHoneypotSilentDrop(t *testing.T) {
	e := echo.New()
	h, store, mailer := newTestNewsletterHandler(3)

	ctx, rec := postJSON(e, "/api/footer-subscribe", `{"email":"ada@example.com","honeypot":"gotcha"}`, "9.9.9.9")
	if err := h.footer(ctx); err != nil {
		t.Fatalf("footer: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("honeypot must return the success shape, got %d", rec.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true {
		t.Fatalf("honeypot response must be indistinguishable from success, got %v", body)
	}
	if store.creates != 0 || store.finds != 0 {
		t.Fatalf("honeypot must not touch the content store (creates=%d finds=%d)", store.creates, store.finds)
	}
	if mailer.sends != 0 {
		t.Fatalf("honeypot must not send email, got %d sends", mailer.sends)
	}

	// And it did not consume quota either.
	ctx, rec = postJSON(e, "/api/footer-subscribe", `{"email":"ada@example.com"}`, "9.9.9.9")
	if err := h.footer(ctx); err != nil {
		t.Fatalf("footer: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("real submission after honeypot should pass, got %d", rec.Code)
	}
	if store.creates != 1 {
		t.Fatalf("real submission should be stored")
	}
}

func TestFooterSpamHeuristics(t *testing.T) {
	e := echo.New()
	h, store, _ := newTestNewsletterHandler(3)

	for _, email := range []string{"test99@gmail.com", "ab@gmail.com", "u1234567@mail.com", "bot@cheap.xyz"} {
		ctx, rec := postJSON(e, "/api/footer-subscribe", `{"email":"`+email+`"}`, "9.9.9.9")
		if err := h.footer(ctx); err != nil {
			t.Fatalf("footer: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("email %q: expected 400, got %d", email, rec.Code)
		}
	}
	if store.creates != 0 {
		t.Fatalf("suspicious emails must not be stored")
	}
}

func TestNewsletterStoreFailure(t *testing.T) {
	e := echo.New()
	h, store, mailer := newTestNewsletterHandler(3)
	store.fail = io.ErrUnexpectedEOF

	ctx, rec := postJSON(e, "/api/newsletter", `{"email":"ada@example.com"}`, "9.9.9.9")
	if err := h.blog(ctx); err != nil {
		t.Fatalf("blog: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if mailer.sends != 0 {
		t.Fatalf("no email after store failure")
	}

	// The failed dispatch did not consume quota.
	store.fail = nil
	ctx, rec = postJSON(e, "/api/newsletter", `{"email":"ada@example.com"}`, "9.9.9.9")
	_ = h.blog(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry should pass, got %d", rec.Code)
	}
}
