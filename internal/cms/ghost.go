package cms

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

// GhostConfig carries the admin API settings. AdminKey is the "id:secret"
// pair from the Ghost integrations screen.
type GhostConfig struct {
	AdminURL string        `mapstructure:"admin_url"` // e.g. https://blog.example.com
	AdminKey string        `mapstructure:"admin_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Ghost stores subscribers as members via the Ghost admin API.
type Ghost struct {
	cfg    GhostConfig
	client *http.Client
	now    func() time.Time
}

// NewGhost builds a Ghost-backed ContentStore.
func NewGhost(cfg GhostConfig) *Ghost {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Ghost{cfg: cfg, client: &http.Client{Timeout: timeout}, now: time.Now}
}

type ghostMember struct {
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type ghostEnvelope struct {
	Members []ghostMember `json:"members"`
}

// CreateRecord adds a member labeled with the record's kind and source.
// Ghost reports an existing email as 422 with an "already exists" message,
// which is normalized to an upstream conflict.
func (g *Ghost) CreateRecord(ctx context.Context, rec Record) (string, error) {
	defer metrics.ObserveUpstream("ghost", "create_record", time.Now())
	labels := []string{rec.Kind}
	if rec.Source != "" {
		labels = append(labels, rec.Source)
	}
	in := ghostEnvelope{Members: []ghostMember{{Email: rec.Email, Name: rec.Name, Labels: labels}}}

	var out ghostEnvelope
	if err := g.do(ctx, http.MethodPost, "/ghost/api/admin/members/", in, &out); err != nil {
		if ue, ok := upstream.AsError(err); ok && ue.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(ue.Message), "already exists") {
			ue.Kind = upstream.Conflict
		}
		return "", err
	}
	if len(out.Members) == 0 {
		return "", fmt.Errorf("ghost create: response carried no member")
	}
	return out.Members[0].ID, nil
}

// FindByEmail filters members by exact email.
func (g *Ghost) FindByEmail(ctx context.Context, kind, email string) (*Record, error) {
	defer metrics.ObserveUpstream("ghost", "find_by_email", time.Now())
	q := url.Values{}
	q.Set("filter", "email:'"+email+"'")
	var out ghostEnvelope
	if err := g.do(ctx, http.MethodGet, "/ghost/api/admin/members/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Members) == 0 {
		return nil, nil
	}
	m := out.Members[0]
	return &Record{ID: m.ID, Kind: kind, Key: Slugify(m.Email), Email: m.Email, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

// ListRecords returns the newest members.
func (g *Ghost) ListRecords(ctx context.Context, kind string, limit int) ([]Record, error) {
	defer metrics.ObserveUpstream("ghost", "list_records", time.Now())
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("order", "created_at desc")
	q.Set("filter", "label:'"+kind+"'")
	var out ghostEnvelope
	if err := g.do(ctx, http.MethodGet, "/ghost/api/admin/members/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(out.Members))
	for _, m := range out.Members {
		recs = append(recs, Record{ID: m.ID, Kind: kind, Key: Slugify(m.Email), Email: m.Email, Name: m.Name, CreatedAt: m.CreatedAt})
	}
	return recs, nil
}

// token mints the short-lived JWT the Ghost admin API expects: HS256 over
// the hex-decoded secret, kid header set to the key ID, aud "/admin/".
func (g *Ghost) token() (string, error) {
	id, secret, ok := strings.Cut(g.cfg.AdminKey, ":")
	if !ok {
		return "", fmt.Errorf("ghost: admin key must be id:secret")
	}
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("ghost: admin key secret is not hex: %w", err)
	}

	now := g.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "/admin/",
	})
	tok.Header["kid"] = id
	return tok.SignedString(raw)
}

func (g *Ghost) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(g.cfg.AdminURL, "/")+path, body)
	if err != nil {
		return err
	}
	tok, err := g.token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Ghost "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &upstream.Error{Kind: upstream.Unavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return upstream.FromStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
