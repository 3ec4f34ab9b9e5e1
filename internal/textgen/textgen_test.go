package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/goals"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestLocal_GoalsAreValidAndScaled(t *testing.T) {
	l := NewLocal(goals.DefaultProgression(), catalogs.Default(), 7)
	for phase := 1; phase <= 6; phase++ {
		g, err := l.GenerateGoal(context.Background(), goals.Context{Phase: phase, Style: 100})
		require.NoError(t, err)
		require.NoError(t, g.Validate())
		assert.NotEmpty(t, g.ID)
		m := goals.DefaultProgression().Multiplier(phase)
		switch g.Metric {
		case goals.MetricStyle:
			assert.Equal(t, 100+80*m, g.TargetValue)
			assert.Equal(t, 350*m, g.Reward)
		case goals.MetricFurnitureCount:
			assert.Equal(t, 250*m, g.Reward)
		}
	}
}

func TestLocal_Snippets(t *testing.T) {
	l := NewLocal(goals.DefaultProgression(), nil, 1)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		s, ok, err := l.GenerateSnippet(context.Background(), goals.Context{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEmpty(t, s.Text)
		assert.False(t, seen[s.ID], "snippet ids must be unique")
		seen[s.ID] = true
	}
}

func TestRemote_Goal(t *testing.T) {
	var gotAuth string
	var gotCtx goals.Context
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotCtx)
		_, _ = w.Write([]byte(`{"title":"Reader","description":"Add 2 bookshelves","metric":"furniture_count","target_value":2,"target_furniture":"BOOKSHELF","reward":500}`))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL+"/", "tok", catalogs.Default())
	g, err := r.GenerateGoal(context.Background(), goals.Context{Phase: 3, Budget: 10})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 3, gotCtx.Phase)
	assert.Equal(t, goals.MetricFurnitureCount, g.Metric)
	assert.Equal(t, "BOOKSHELF", g.TargetFurniture)
	assert.Equal(t, 2, g.TargetValue)
	assert.Equal(t, 500, g.Reward)
	assert.NotEmpty(t, g.ID)
}

func TestRemote_RejectsSchemaViolations(t *testing.T) {
	replies := []string{
		`{"description":"x","metric":"luck","target_value":2,"reward":5}`,
		`{"description":"x","metric":"style","target_value":0,"reward":5}`,
		`{"metric":"style","target_value":2,"reward":5}`,
		`{"description":"x","metric":"furniture_count","target_value":2,"target_furniture":"UNICORN","reward":5}`,
		`not json`,
	}
	for _, body := range replies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		r := NewRemote(srv.URL, "", catalogs.Default())
		_, err := r.GenerateGoal(context.Background(), goals.Context{Phase: 1})
		assert.Error(t, err, body)
		srv.Close()
	}
}

func TestRemote_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"text":"Rugs are back.","category":"trend"}`))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", nil)
	var delays []time.Duration
	r.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	s, ok, err := r.GenerateSnippet(context.Background(), goals.Context{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, CategoryTrend, s.Category)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, delays, 2)
	assert.Less(t, delays[0], delays[1])
}

func TestRemote_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", nil)
	r.Retries = 2
	r.Sleep = noSleep
	_, err := r.GenerateGoal(context.Background(), goals.Context{Phase: 1})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRemote_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", nil)
	r.Sleep = noSleep
	_, err := r.GenerateGoal(context.Background(), goals.Context{Phase: 1})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRemote_NoContentMeansNoSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, ok, err := NewRemote(srv.URL, "", nil).GenerateSnippet(context.Background(), goals.Context{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemote_Unconfigured(t *testing.T) {
	_, err := NewRemote("", "", nil).GenerateGoal(context.Background(), goals.Context{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

type failing struct{}

func (failing) GenerateGoal(context.Context, goals.Context) (goals.Goal, error) {
	return goals.Goal{}, errors.New("boom")
}

func (failing) GenerateSnippet(context.Context, goals.Context) (Snippet, bool, error) {
	return Snippet{}, false, errors.New("boom")
}

func TestFallback(t *testing.T) {
	f := Fallback{Primary: failing{}, Secondary: NewLocal(goals.DefaultProgression(), nil, 3)}
	g, err := f.GenerateGoal(context.Background(), goals.Context{Phase: 1})
	require.NoError(t, err)
	assert.NoError(t, g.Validate())
	_, ok, err := f.GenerateSnippet(context.Background(), goals.Context{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Fallback{Primary: failing{}}.GenerateGoal(context.Background(), goals.Context{})
	assert.Error(t, err)
	_, err = Fallback{}.GenerateGoal(context.Background(), goals.Context{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
