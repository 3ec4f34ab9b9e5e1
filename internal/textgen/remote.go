package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/goals"
)

const goalSchema = `{
  "type": "object",
  "required": ["description", "metric", "target_value", "reward"],
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string", "minLength": 1},
    "metric": {"enum": ["style", "furniture_count"]},
    "target_value": {"type": "integer", "minimum": 1},
    "target_furniture": {"type": "string"},
    "reward": {"type": "integer", "minimum": 0}
  }
}`

const snippetSchema = `{
  "type": "object",
  "required": ["text", "category"],
  "properties": {
    "text": {"type": "string", "minLength": 1},
    "category": {"enum": ["trend", "critique", "tip"]}
  }
}`

var (
	goalValidator    = jsonschema.MustCompileString("goal.schema.json", goalSchema)
	snippetValidator = jsonschema.MustCompileString("snippet.schema.json", snippetSchema)
)

// StatusError is a non-2xx reply from the remote generator.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("textgen: remote status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusServiceUnavailable
}

// Remote talks to an HTTP text generation service:
//
//	POST {base}/v1/goal     body: goals.Context   reply: goal JSON
//	POST {base}/v1/snippet  body: goals.Context   reply: snippet JSON
//
// Replies are validated against a JSON schema before use. Rate limiting
// (429) and unavailability (503) are retried with exponential backoff.
type Remote struct {
	BaseURL string
	Token   string
	Retries int
	Catalog *catalogs.Catalog

	HTTP  *http.Client
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRemote(baseURL, token string, cat *catalogs.Catalog) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		Retries: 3,
		Catalog: cat,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type remoteGoal struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Metric          string `json:"metric"`
	TargetValue     int    `json:"target_value"`
	TargetFurniture string `json:"target_furniture"`
	Reward          int    `json:"reward"`
}

func (r *Remote) GenerateGoal(ctx context.Context, gc goals.Context) (goals.Goal, error) {
	raw, err := r.post(ctx, "/v1/goal", gc)
	if err != nil {
		return goals.Goal{}, err
	}
	if err := validate(goalValidator, raw); err != nil {
		return goals.Goal{}, fmt.Errorf("textgen: goal reply: %w", err)
	}
	var rg remoteGoal
	if err := json.Unmarshal(raw, &rg); err != nil {
		return goals.Goal{}, fmt.Errorf("textgen: goal reply: %w", err)
	}
	g := goals.Goal{
		ID:              "quest_" + uuid.NewString(),
		Title:           rg.Title,
		Description:     rg.Description,
		Metric:          goals.Metric(rg.Metric),
		TargetValue:     rg.TargetValue,
		TargetFurniture: rg.TargetFurniture,
		Reward:          rg.Reward,
	}
	if g.Metric != goals.MetricFurnitureCount {
		g.TargetFurniture = ""
	} else if r.Catalog != nil {
		if _, err := r.Catalog.Lookup(g.TargetFurniture); err != nil || g.TargetFurniture == catalogs.Eraser {
			return goals.Goal{}, fmt.Errorf("textgen: goal reply: target furniture %q not placeable", g.TargetFurniture)
		}
	}
	if err := g.Validate(); err != nil {
		return goals.Goal{}, fmt.Errorf("textgen: goal reply: %w", err)
	}
	return g, nil
}

func (r *Remote) GenerateSnippet(ctx context.Context, gc goals.Context) (Snippet, bool, error) {
	raw, err := r.post(ctx, "/v1/snippet", gc)
	if err != nil {
		return Snippet{}, false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Snippet{}, false, nil
	}
	if err := validate(snippetValidator, raw); err != nil {
		return Snippet{}, false, fmt.Errorf("textgen: snippet reply: %w", err)
	}
	var s Snippet
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snippet{}, false, fmt.Errorf("textgen: snippet reply: %w", err)
	}
	s.ID = uuid.NewString()
	return s, true, nil
}

func (r *Remote) post(ctx context.Context, path string, body any) ([]byte, error) {
	if r.BaseURL == "" {
		return nil, ErrUnavailable
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		raw, err := r.once(ctx, path, payload)
		if err == nil {
			return raw, nil
		}
		se, ok := err.(*StatusError)
		if !ok || !se.retryable() || attempt >= r.Retries {
			return nil, err
		}
		delay := time.Duration(1<<attempt)*time.Second + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (r *Remote) once(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

func (r *Remote) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validate(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
