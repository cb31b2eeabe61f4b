package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lingua/internal/app"
	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/config"
	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/llm"
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/store"
)

const (
	question = `{"sentence":"Nous ___ prêts.","answer":"sommes","hint":"être"}`
	correct  = `{"is_correct":true,"score":100,"feedback":"Très bien.","correct_answer":""}`
)

type testServer struct {
	srv  *httptest.Server
	mock *llm.MockProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	src := catalog.Modules(catalog.Module{
		ID:              "fr",
		Title:           "French",
		Titles:          map[string]string{"es": "Francés"},
		SourceLanguages: []string{"en", "es"},
		Submodules: []catalog.Submodule{
			{ID: "etre", Title: "Être", Context: "Conjugate être", SchemaIDs: []string{interaction.GapFill}},
		},
	})
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite"},
		LLM:      llm.Config{Provider: "mock"},
		Engine:   config.EngineConfig{PickerStrategy: "random"},
	}
	mock := llm.NewMockProvider()
	a, err := app.New(context.Background(), cfg, app.Options{Store: st, Provider: mock, Catalog: src})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(NewServer(a.Sessions, a.Catalog, a.Stats, nil).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (ts *testServer) start(t *testing.T) string {
	t.Helper()
	ts.mock.AddResponseFor("gap-fill-question", llm.MockResponse{Text: question})
	status, body := ts.do(t, http.MethodPost, "/api/sessions", StartRequest{
		UserID: "u1", ModuleID: "fr", TargetLanguage: "fr", SourceLanguage: "en",
	})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	return body["session_id"].(string)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	status, view := ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_answer", view["phase"])
	cur := view["current"].(map[string]any)
	assert.Equal(t, "etre", cur["submodule_id"])
	assert.Equal(t, "gap-fill", cur["component"])

	ts.mock.AddResponseFor("marking-result", llm.MockResponse{Text: correct})
	ts.mock.AddResponseFor("gap-fill-question", llm.MockResponse{Text: question})
	status, ans := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]string{"answer": "sommes"})
	require.Equal(t, http.StatusOK, status, "body: %v", ans)
	mark := ans["mark"].(map[string]any)
	assert.Equal(t, true, mark["is_correct"])
	assert.NotNil(t, ans["next_step"])
	assert.Equal(t, "sommes", ans["next_question_data"].(map[string]any)["answer"])

	status, view = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_answer", view["phase"])
	assert.EqualValues(t, 1, view["correct_count"])
	assert.EqualValues(t, 1, view["total_answered"])

	status, perf := ts.do(t, http.MethodGet, "/api/users/u1/modules/fr/performance", nil)
	require.Equal(t, http.StatusOK, status)
	overall := perf["overall"].(map[string]any)
	assert.EqualValues(t, 1, overall["total"])
	assert.EqualValues(t, 100, overall["accuracy"])
	assert.EqualValues(t, 1, perf["by_skill"].(map[string]any)["writing"].(map[string]any)["correct"])

	status, sum := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, sum["overall"].(map[string]any)["total"])

	status, view = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/end", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ended", view["phase"])
}

func TestAnswer_LastQuestionHasNullNext(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	// No question queued: the pre-fetch fails and the answer still stands.
	ts.mock.AddResponseFor("marking-result", llm.MockResponse{Text: correct})
	status, ans := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]string{"answer": "sommes"})
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, ans["next_step"])
	assert.Nil(t, ans["next_question_data"])
}

func TestStart_GenerationFailureThenRetry(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/sessions", StartRequest{
		UserID: "u1", ModuleID: "fr", TargetLanguage: "fr", SourceLanguage: "en",
	})
	require.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, KindGeneration, body["kind"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "error", state["phase"])
	id := state["session_id"].(string)

	ts.mock.AddResponseFor("gap-fill-question", llm.MockResponse{Text: question})
	status, view := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_answer", view["phase"])
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	status, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, KindConflict, body["kind"])
	assert.Equal(t, "awaiting_answer", body["state"].(map[string]any)["phase"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	id := ts.start(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"missing user", "/api/sessions", map[string]string{"module_id": "fr", "target_language": "fr", "source_language": "en"}},
		{"bad language tag", "/api/sessions", map[string]string{"user_id": "u", "module_id": "fr", "target_language": "fr", "source_language": "not a tag"}},
		{"unknown field", "/api/sessions", map[string]string{"user_id": "u", "module_id": "fr", "target_language": "fr", "source_language": "en", "level": "b1"}},
		{"malformed json", "/api/sessions", `{"user_id":`},
		{"missing answer", "/api/sessions/" + id + "/answer", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, KindInvalidRequest, body["kind"])
		})
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodPost, "/api/sessions/nope/skip", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodPost, "/api/sessions", StartRequest{
		UserID: "u1", ModuleID: "klingon", TargetLanguage: "fr", SourceLanguage: "en",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodGet, "/api/modules/klingon", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodGet, "/api/users/u1/modules/klingon/performance", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestModules(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/modules?lang=es", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mods []catalog.ModuleView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mods))
	require.Len(t, mods, 1)
	assert.Equal(t, "Francés", mods[0].Title)

	status, mod := ts.do(t, http.MethodGet, "/api/modules/fr?lang=en", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "French", mod["title"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("x: %w", session.ErrSessionNotFound), http.StatusNotFound, KindNotFound},
		{session.ErrInvalidParams, http.StatusBadRequest, KindInvalidRequest},
		{session.ErrBusy, http.StatusConflict, KindConflict},
		{fmt.Errorf("advance: %w", session.ErrInvalidTransition), http.StatusConflict, KindConflict},
		{&contentgen.GenerationError{Label: "q", Attempts: 2, Err: errors.New("bad")}, http.StatusServiceUnavailable, KindGeneration},
		{&apperr.PersistenceError{Op: "append", Err: errors.New("disk")}, http.StatusServiceUnavailable, KindPersistence},
		{apperr.Configf("module m", "not in catalog"), http.StatusInternalServerError, KindConfiguration},
		{errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		status, kind := classify(tt.err)
		if status != tt.status || kind != tt.kind {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, kind, tt.status, tt.kind)
		}
	}
}
