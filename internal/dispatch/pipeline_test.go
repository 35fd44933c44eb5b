package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

var discard = log.New(io.Discard, "", 0)

// fakeStore counts calls and scripts responses.
type fakeStore struct {
	existing  *cms.Record
	createID  string
	createErr error

	finds   int
	creates int
}

func (f *fakeStore) CreateRecord(_ context.Context, rec cms.Record) (string, error) {
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeStore) FindByEmail(_ context.Context, kind, email string) (*cms.Record, error) {
	f.finds++
	return f.existing, nil
}

func (f *fakeStore) ListRecords(_ context.Context, kind string, limit int) ([]cms.Record, error) {
	return nil, nil
}

type fakeMailer struct {
	err   error
	sends int
	last  mail.Message
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.sends++
	f.last = msg
	if f.err != nil {
		return f.err
	}
	return nil
}

func newsletterPipeline(store cms.ContentStore, mailer mail.Mailer, lim *ratelimit.Limiter) *Pipeline {
	return &Pipeline{Logger: discard, Steps: []Step{
		ExistenceCheck(store),
		CreateRecord(store, discard),
		SendEmail(mailer, func(st *State) mail.Message {
			return mail.WelcomeEmail("hello@outplay.pt", st.Record.Email)
		}, discard),
		RecordQuota(lim, discard),
	}}
}

func testState() *State {
	return &State{
		Endpoint: "newsletter",
		ClientID: "1.2.3.4",
		Record: cms.Record{
			Kind:   cms.KindSubscriber,
			Key:    cms.Slugify("ada@example.com"),
			Email:  "ada@example.com",
			Source: "blog_newsletter",
		},
	}
}

func TestPipelineHappyPath(t *testing.T) {
	store := &fakeStore{createID: "42"}
	mailer := &fakeMailer{}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	code, body, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != http.StatusOK || body["success"] != true || body["id"] != "42" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if store.creates != 1 || mailer.sends != 1 {
		t.Fatalf("expected one create and one send, got %d/%d", store.creates, mailer.sends)
	}
	if ok, _ := lim.Allow(context.Background(), "1.2.3.4"); !ok {
		t.Fatalf("quota should not be exhausted after one submission")
	}
}

func TestPipelineAlreadySubscribedShortCircuits(t *testing.T) {
	store := &fakeStore{existing: &cms.Record{ID: "7", Email: "ada@example.com"}}
	mailer := &fakeMailer{}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	code, body, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != http.StatusOK || body["message"] != "already subscribed" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if store.creates != 0 {
		t.Fatalf("no duplicate write expected, got %d creates", store.creates)
	}
	if mailer.sends != 0 {
		t.Fatalf("no duplicate welcome email expected, got %d sends", mailer.sends)
	}
}

func TestPipelineConflictOnCreateIsNonFatal(t *testing.T) {
	store := &fakeStore{createErr: &upstream.Error{Kind: upstream.Conflict, StatusCode: 409, Message: "exists"}}
	mailer := &fakeMailer{}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	code, body, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err != nil {
		t.Fatalf("conflict must not fail the pipeline: %v", err)
	}
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if mailer.sends != 1 {
		t.Fatalf("welcome email should still be attempted after a conflict")
	}
}

func TestPipelineHardStoreFailure(t *testing.T) {
	store := &fakeStore{createErr: &upstream.Error{Kind: upstream.Unavailable, StatusCode: 500, Message: "down"}}
	mailer := &fakeMailer{}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	_, _, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err == nil {
		t.Fatalf("expected pipeline failure")
	}
	if mailer.sends != 0 {
		t.Fatalf("email must not be sent after a hard store failure")
	}
	// Failed dispatch must not consume quota.
	if ok, _ := lim.Allow(context.Background(), "1.2.3.4"); !ok {
		t.Fatalf("failed dispatch consumed quota")
	}
}

func TestPipelineEmailRateLimitDowngrades(t *testing.T) {
	store := &fakeStore{createID: "42"}
	mailer := &fakeMailer{err: &upstream.Error{Kind: upstream.RateLimited, StatusCode: 429, Message: "slow down"}}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	code, body, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err != nil {
		t.Fatalf("vendor 429 must downgrade, not fail: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("expected 200 partial success, got %d", code)
	}
	if body["message"] == nil {
		t.Fatalf("expected caveat message in response, got %v", body)
	}
}

func TestPipelineEmailHardFailure(t *testing.T) {
	store := &fakeStore{createID: "42"}
	mailer := &fakeMailer{err: errors.New("smtp exploded")}
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 3)

	_, _, err := newsletterPipeline(store, mailer, lim).Run(context.Background(), testState())
	if err == nil {
		t.Fatalf("expected failure for non-429 email error")
	}
}

func TestPipelineQuotaRecordedOnlyOnSuccess(t *testing.T) {
	lim := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), time.Hour, 1)
	store := &fakeStore{createID: "1"}
	mailer := &fakeMailer{}
	p := newsletterPipeline(store, mailer, lim)

	if _, _, err := p.Run(context.Background(), testState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok, _ := lim.Allow(context.Background(), "1.2.3.4"); ok {
		t.Fatalf("expected quota of 1 consumed by successful dispatch")
	}
}
