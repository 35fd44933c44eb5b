// Package cms abstracts the two headless CMS backends (Storyblok, Ghost)
// behind one ContentStore capability so dispatch logic never branches on
// which vendor is configured.
package cms

import (
	"context"
	"strings"
	"time"
)

// Record kinds used as content-store schema tags.
const (
	KindNewsletterSubscriber = "newsletter_subscriber"
	KindContactSubmission    = "contact_submission"
	KindSubscriber           = "subscriber"
)

// Record is one stored submission or subscriber entry.
type Record struct {
	ID        string
	Kind      string
	Key       string // deterministic dedupe key, usually Slugify(email)
	Email     string
	Name      string
	Source    string
	Fields    map[string]string // kind-specific extras (topic, challenge, ...)
	CreatedAt time.Time
}

// ContentStore is the capability both CMS vendors implement.
type ContentStore interface {
	// CreateRecord persists rec and returns the vendor-assigned ID. A
	// duplicate is reported as an upstream conflict error.
	CreateRecord(ctx context.Context, rec Record) (string, error)
	// FindByEmail looks an existing record up by the submitter's email.
	// How the lookup key is derived (slug path, email filter) is the
	// vendor's business. Absence is (nil, nil), not an error.
	FindByEmail(ctx context.Context, kind, email string) (*Record, error)
	// ListRecords returns up to limit records of the given kind, newest
	// first.
	ListRecords(ctx context.Context, kind string, limit int) ([]Record, error)
}

// Slugify derives the deterministic dedupe key for an email address:
// lowercased, every non-alphanumeric character replaced with a dash.
func Slugify(email string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(email)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
