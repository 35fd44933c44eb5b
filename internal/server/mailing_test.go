package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

type stubContacts struct {
	emails []string
	err    error
}

func (s *stubContacts) AddContact(_ context.Context, email string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.emails = append(s.emails, email)
	return "contact-1", nil
}

func TestMailingListSubscribe(t *testing.T) {
	e := echo.New()
	contacts := &stubContacts{}
	h := &MailingListHandler{Contacts: contacts}

	ctx, rec := postJSON(e, "/api/mailing-list", `{"email":"ada@example.com"}`, "")
	if err := h.subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "subscribed" || body["id"] != "contact-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if len(contacts.emails) != 1 || contacts.emails[0] != "ada@example.com" {
		t.Fatalf("unexpected vendor calls %v", contacts.emails)
	}
}

func TestMailingListInvalidEmail(t *testing.T) {
	e := echo.New()
	h := &MailingListHandler{Contacts: &stubContacts{}}

	ctx, rec := postJSON(e, "/api/mailing-list", `{"email":"not-an-email"}`, "")
	if err := h.subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// Vendor rejections surface as 502 with the vendor's status attached,
// not as a masked 500.
func TestMailingListVendorRejection(t *testing.T) {
	e := echo.New()
	h := &MailingListHandler{Contacts: &stubContacts{
		err: &upstream.Error{Kind: upstream.Unknown, StatusCode: 422, Message: "contact already exists"},
	}}

	ctx, rec := postJSON(e, "/api/mailing-list", `{"email":"ada@example.com"}`, "")
	if err := h.subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["vendor_status"] != float64(422) {
		t.Fatalf("expected vendor status passthrough, got %v", body)
	}
	if body["details"] != "contact already exists" {
		t.Fatalf("expected vendor message passthrough, got %v", body)
	}
}

func TestMailingListNetworkFailure(t *testing.T) {
	e := echo.New()
	h := &MailingListHandler{Contacts: &stubContacts{
		err: &upstream.Error{Kind: upstream.Unavailable, Message: "connection refused"},
	}}

	ctx, rec := postJSON(e, "/api/mailing-list", `{"email":"ada@example.com"}`, "")
	if err := h.subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for errors without a vendor verdict, got %d", rec.Code)
	}
}
