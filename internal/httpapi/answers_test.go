package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clinika/medanswer/internal/config"
	"github.com/clinika/medanswer/internal/llm"
	"github.com/clinika/medanswer/internal/pipeline"
	"github.com/clinika/medanswer/internal/search"
	"github.com/clinika/medanswer/internal/session"
)

type fixedSearch struct {
	results []search.Result
}

func (s *fixedSearch) Search(context.Context, string, int, string) ([]search.Result, error) {
	return s.results, nil
}

type fixedLLM struct {
	text string
}

func (p *fixedLLM) Name() string { return "fixed" }

func (p *fixedLLM) Complete(context.Context, llm.Request) (string, error) {
	return p.text, nil
}

// countingLLM records how many history turns each synthesis call saw.
type countingLLM struct {
	mu     sync.Mutex
	counts []int
}

func (p *countingLLM) Name() string { return "counting" }

func (p *countingLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.counts = append(p.counts, len(req.Messages))
	p.mu.Unlock()
	return "Diabetes is a chronic condition [1].", nil
}

func newTestHandler(t *testing.T, answer string, withSessions bool) *AnswerHandler {
	t.Helper()
	return newTestHandlerWithProvider(t, &fixedLLM{text: answer}, withSessions)
}

func newTestHandlerWithProvider(t *testing.T, provider llm.Provider, withSessions bool) *AnswerHandler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	lex := config.DefaultLexicon()
	lexicon := func() *config.Lexicon { return lex }

	svc := &fixedSearch{results: []search.Result{
		{Title: "Diabetes overview", Snippet: "A chronic condition.", Link: "https://nih.example/a", Rank: 1},
	}}
	p := pipeline.New(
		pipeline.NewSafetyFilter(lexicon),
		pipeline.NewTopicResolver(logger, pipeline.NewGazetteerTopicStrategy(lexicon)),
		pipeline.NewRewriter(lexicon),
		pipeline.NewCascade(svc, pipeline.CascadeOptions{TrustedScopeID: "trusted"}, logger),
		pipeline.NewSynthesizer(provider, pipeline.SynthesizerOptions{}, logger),
		pipeline.NewEvaluator(lexicon),
		pipeline.PipelineOptions{},
		logger,
	)

	var sessions *session.Manager
	if withSessions {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		sessions = session.NewManagerWithClient(client, session.Options{}, logger)
	}
	return NewAnswerHandler(p, sessions, logger)
}

func postAnswer(t *testing.T, h *AnswerHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest(http.MethodPost, "/v1/answers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAnswerEndpointHappyPath(t *testing.T) {
	h := newTestHandler(t, "Diabetes is a chronic condition [1].", true)

	rec := postAnswer(t, h, `{"messages":[{"role":"user","content":"what is diabetes"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Diabetes is a chronic condition [1].", resp.Answer)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "https://nih.example/a", resp.Sources[0].Link)
}

func TestAnswerEndpointPersistsExchange(t *testing.T) {
	h := newTestHandler(t, "Diabetes is a chronic condition [1].", true)

	rec := postAnswer(t, h, `{"messages":[{"role":"user","content":"what is diabetes"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	sess, err := h.sessions.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "user", sess.History[0].Role)
	assert.Equal(t, "assistant", sess.History[1].Role)
	assert.Equal(t, first.Answer, sess.History[1].Content)
}

func TestAnswerEndpointReusesSession(t *testing.T) {
	h := newTestHandler(t, "Diabetes is managed with diet [1].", true)

	rec := postAnswer(t, h, `{"messages":[{"role":"user","content":"what is diabetes"}]}`)
	var first answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = postAnswer(t, h, `{"session_id":"`+first.SessionID+`","messages":[{"role":"user","content":"how is it managed"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.SessionID, second.SessionID)

	sess, err := h.sessions.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.History, 4)
}

func TestAnswerEndpointSerializesSameSessionExchanges(t *testing.T) {
	provider := &countingLLM{}
	h := newTestHandlerWithProvider(t, provider, true)

	rec := postAnswer(t, h, `{"messages":[{"role":"user","content":"what is diabetes"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	var wg sync.WaitGroup
	for _, q := range []string{"how is diabetes treated", "does diabetes cause fatigue"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			rec := postAnswer(t, h, `{"session_id":"`+first.SessionID+`","messages":[{"role":"user","content":"`+q+`"}]}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		}(q)
	}
	wg.Wait()

	sess, err := h.sessions.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.History, 6)
	for i, turn := range sess.History {
		want := "user"
		if i%2 == 1 {
			want = "assistant"
		}
		assert.Equal(t, want, turn.Role)
	}

	// The lock covers the whole read-modify-append exchange, so each
	// synthesis call saw the previous exchange already appended: 1, 3,
	// and 5 turns. Interleaved exchanges would repeat a count instead.
	counts := append([]int(nil), provider.counts...)
	sort.Ints(counts)
	assert.Equal(t, []int{1, 3, 5}, counts)
}

func TestAnswerEndpointStatelessWithoutSessionStore(t *testing.T) {
	h := newTestHandler(t, "Diabetes is a chronic condition [1].", false)

	rec := postAnswer(t, h, `{"messages":[{"role":"user","content":"what is diabetes"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp answerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Answer)
}

func TestAnswerEndpointValidation(t *testing.T) {
	h := newTestHandler(t, "ok", false)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"system","content":"x"}]}`},
		{"empty content", `{"messages":[{"role":"user","content":""}]}`},
		{"no user turn", `{"messages":[{"role":"assistant","content":"hi"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postAnswer(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnswerEndpointRejectsGet(t *testing.T) {
	h := newTestHandler(t, "ok", false)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/answers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, "ok", true)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
