package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

// ResendConfig carries the Resend API settings.
type ResendConfig struct {
	BaseURL        string        `mapstructure:"base_url"` // default https://api.resend.com
	APIKey         string        `mapstructure:"api_key"`
	From           string        `mapstructure:"from"`        // default sender
	AdminEmail     string        `mapstructure:"admin_email"` // internal alert recipient
	AudienceID     string        `mapstructure:"audience_id"` // mailing-list audience
	ThrottlePerSec float64       `mapstructure:"throttle_per_sec"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Resend talks to the Resend REST API. Sends are throttled client-side
// because the vendor enforces a small per-second limit and answers bursts
// with 429s.
type Resend struct {
	cfg     ResendConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewResend builds a Resend client with the configured throttle.
func NewResend(cfg ResendConfig) *Resend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	if cfg.ThrottlePerSec <= 0 {
		cfg.ThrottlePerSec = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resend{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.ThrottlePerSec), 1),
	}
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send posts one email, waiting on the throttle first.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	defer metrics.ObserveUpstream("resend", "send_email", time.Now())
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = r.cfg.From
	}
	body := resendEmail{From: from, To: msg.To, Subject: msg.Subject, HTML: msg.HTML}
	return r.do(ctx, http.MethodPost, "/emails", body, nil)
}

// AddContact subscribes an email to the configured audience. The returned
// status is surfaced so the endpoint can pass the vendor's verdict through.
func (r *Resend) AddContact(ctx context.Context, email string) (string, error) {
	defer metrics.ObserveUpstream("resend", "add_contact", time.Now())
	if r.cfg.AudienceID == "" {
		return "", fmt.Errorf("resend: audience_id not configured")
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body := map[string]interface{}{"email": email, "unsubscribed": false}
	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/audiences/%s/contacts", r.cfg.AudienceID)
	if err := r.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (r *Resend) do(ctx context.Context, method, path string, in, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &upstream.Error{Kind: upstream.Unavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return upstream.FromStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
