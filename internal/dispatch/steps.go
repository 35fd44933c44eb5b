package dispatch

import (
	"context"
	"log"
	"net/http"

	"github.com/joaodesousa/outplay-forms/internal/cms"
	"github.com/joaodesousa/outplay-forms/internal/mail"
	"github.com/joaodesousa/outplay-forms/internal/ratelimit"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

// ExistenceCheck short-circuits with "already subscribed" when the store
// already holds a record for the submitter. No duplicate write, no
// duplicate welcome email.
func ExistenceCheck(store cms.ContentStore) Step {
	return Step{
		Name: "existence_check",
		Run: func(ctx context.Context, st *State) Result {
			rec, err := store.FindByEmail(ctx, st.Record.Kind, st.Record.Email)
			if err != nil {
				return Fail(err)
			}
			if rec != nil {
				return ShortCircuit(http.StatusOK, map[string]interface{}{
					"message": "already subscribed",
					"id":      rec.ID,
				})
			}
			return Continue()
		},
	}
}

// CreateRecord persists the submission. A duplicate conflict is logged and
// swallowed: the record already exists, so the flow should still proceed to
// the notification step.
func CreateRecord(store cms.ContentStore, logger *log.Logger) Step {
	return Step{
		Name: "create_record",
		Run: func(ctx context.Context, st *State) Result {
			id, err := store.CreateRecord(ctx, st.Record)
			if err != nil {
				if upstream.IsConflict(err) {
					logger.Printf("%s: duplicate record for %s, continuing: %v", st.Endpoint, st.Record.Key, err)
					return Continue()
				}
				return Fail(err)
			}
			st.ID = id
			return Continue()
		},
	}
}

// SendEmail sends the notification built from the current state. A vendor
// rate-limit is downgraded to a caveat on the success response, since the
// record was already persisted; anything else fails the pipeline.
func SendEmail(mailer mail.Mailer, build func(st *State) mail.Message, logger *log.Logger) Step {
	return Step{
		Name: "send_email",
		Run: func(ctx context.Context, st *State) Result {
			if err := mailer.Send(ctx, build(st)); err != nil {
				if upstream.IsRateLimited(err) {
					logger.Printf("%s: email vendor rate-limited, record kept: %v", st.Endpoint, err)
					st.Caveat = "submission received; confirmation email delayed"
					return Continue()
				}
				return Fail(err)
			}
			return Continue()
		},
	}
}

// RecordQuota charges the submission against the client's rate-limit quota.
// It runs last so a failed dispatch never consumes quota. A store error
// here is logged, not surfaced — the submission already succeeded.
func RecordQuota(limiter *ratelimit.Limiter, logger *log.Logger) Step {
	return Step{
		Name: "record_quota",
		Run: func(ctx context.Context, st *State) Result {
			if err := limiter.Record(ctx, st.ClientID); err != nil {
				logger.Printf("%s: recording quota for %s failed: %v", st.Endpoint, st.ClientID, err)
			}
			return Continue()
		},
	}
}
