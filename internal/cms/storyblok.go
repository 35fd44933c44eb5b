package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joaodesousa/outplay-forms/internal/metrics"
	"github.com/joaodesousa/outplay-forms/internal/upstream"
)

// StoryblokConfig carries the management API settings.
type StoryblokConfig struct {
	BaseURL string `mapstructure:"base_url"` // default https://mapi.storyblok.com/v1
	Token   string `mapstructure:"token"`    // personal management token
	SpaceID string `mapstructure:"space_id"`
	// Folders maps a record kind to the parent folder the stories are
	// created under, e.g. subscriber -> data/subscribers.
	Folders map[string]StoryblokFolder `mapstructure:"folders"`
	Timeout time.Duration              `mapstructure:"timeout"`
}

// StoryblokFolder identifies a content folder by numeric ID and slug prefix.
type StoryblokFolder struct {
	ParentID   int    `mapstructure:"parent_id"`
	SlugPrefix string `mapstructure:"slug_prefix"`
}

// Storyblok stores records as stories via the management API.
type Storyblok struct {
	cfg    StoryblokConfig
	client *http.Client
}

// NewStoryblok builds a Storyblok-backed ContentStore.
func NewStoryblok(cfg StoryblokConfig) *Storyblok {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://mapi.storyblok.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Storyblok{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type storyblokStory struct {
	ID       json.Number            `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Slug     string                 `json:"slug"`
	FullSlug string                 `json:"full_slug,omitempty"`
	ParentID int                    `json:"parent_id,omitempty"`
	Content  map[string]interface{} `json:"content"`
	Created  time.Time              `json:"created_at,omitempty"`
}

type storyblokEnvelope struct {
	Story   *storyblokStory  `json:"story,omitempty"`
	Stories []storyblokStory `json:"stories,omitempty"`
	Publish int              `json:"publish,omitempty"`
}

// CreateRecord creates a story under the folder configured for rec.Kind.
func (s *Storyblok) CreateRecord(ctx context.Context, rec Record) (string, error) {
	defer metrics.ObserveUpstream("storyblok", "create_record", time.Now())
	folder, err := s.folder(rec.Kind)
	if err != nil {
		return "", err
	}

	content := map[string]interface{}{
		"component": rec.Kind,
		"email":     rec.Email,
		"source":    rec.Source,
		"status":    "active",
	}
	if rec.Name != "" {
		content["name"] = rec.Name
	}
	for k, v := range rec.Fields {
		content[k] = v
	}

	name := rec.Email
	if rec.Name != "" {
		name = rec.Name
	}
	env := storyblokEnvelope{
		Story: &storyblokStory{
			Name:     name,
			Slug:     rec.Key,
			ParentID: folder.ParentID,
			Content:  content,
		},
		Publish: 1,
	}

	var out storyblokEnvelope
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/spaces/%s/stories/", s.cfg.SpaceID), env, &out); err != nil {
		return "", err
	}
	if out.Story == nil {
		return "", fmt.Errorf("storyblok create: response carried no story")
	}
	return out.Story.ID.String(), nil
}

// FindByEmail resolves the deterministic full slug for the kind's folder
// and asks for that exact story.
func (s *Storyblok) FindByEmail(ctx context.Context, kind, email string) (*Record, error) {
	defer metrics.ObserveUpstream("storyblok", "find_by_email", time.Now())
	folder, err := s.folder(kind)
	if err != nil {
		return nil, err
	}
	fullSlug := strings.TrimSuffix(folder.SlugPrefix, "/") + "/" + Slugify(email)

	q := url.Values{}
	q.Set("with_slug", fullSlug)
	var out storyblokEnvelope
	err = s.do(ctx, http.MethodGet, fmt.Sprintf("/spaces/%s/stories?%s", s.cfg.SpaceID, q.Encode()), nil, &out)
	if err != nil {
		if ue, ok := upstream.AsError(err); ok && ue.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(out.Stories) == 0 {
		return nil, nil
	}
	rec := storyToRecord(out.Stories[0], kind)
	return &rec, nil
}

// ListRecords pages the kind's folder, newest first.
func (s *Storyblok) ListRecords(ctx context.Context, kind string, limit int) ([]Record, error) {
	defer metrics.ObserveUpstream("storyblok", "list_records", time.Now())
	folder, err := s.folder(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 25
	}

	q := url.Values{}
	q.Set("starts_with", strings.TrimSuffix(folder.SlugPrefix, "/")+"/")
	q.Set("per_page", fmt.Sprintf("%d", limit))
	q.Set("sort_by", "created_at:desc")
	var out storyblokEnvelope
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/spaces/%s/stories?%s", s.cfg.SpaceID, q.Encode()), nil, &out); err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(out.Stories))
	for _, st := range out.Stories {
		recs = append(recs, storyToRecord(st, kind))
	}
	return recs, nil
}

func storyToRecord(st storyblokStory, kind string) Record {
	rec := Record{
		ID:        st.ID.String(),
		Kind:      kind,
		Key:       st.Slug,
		CreatedAt: st.Created,
		Fields:    map[string]string{},
	}
	for k, v := range st.Content {
		sv, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "email":
			rec.Email = sv
		case "name":
			rec.Name = sv
		case "source":
			rec.Source = sv
		case "component":
			rec.Kind = sv
		default:
			rec.Fields[k] = sv
		}
	}
	return rec
}

func (s *Storyblok) folder(kind string) (StoryblokFolder, error) {
	folder, ok := s.cfg.Folders[kind]
	if !ok {
		return StoryblokFolder{}, fmt.Errorf("storyblok: no folder configured for kind %q", kind)
	}
	return folder, nil
}

func (s *Storyblok) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
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
