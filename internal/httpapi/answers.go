// Package httpapi exposes the answer pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/pipeline"
	"github.com/clinika/medanswer/internal/session"
)

// AnswerHandler handles one answer exchange per request: validate, load the
// session history, run the pipeline, append the exchange back.
type AnswerHandler struct {
	pipeline *pipeline.Pipeline
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAnswerHandler creates a new handler.
func NewAnswerHandler(p *pipeline.Pipeline, sessions *session.Manager, logger *zap.Logger) *AnswerHandler {
	return &AnswerHandler{pipeline: p, sessions: sessions, logger: logger}
}

// RegisterRoutes registers answer routes on the provided mux.
func (h *AnswerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/answers", h.handleAnswer)
	mux.HandleFunc("/healthz", h.handleHealth)
}

type turnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// answerRequest is the expected payload. session_id is optional; omitting
// it starts a fresh conversation.
type answerRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Messages  []turnPayload `json:"messages"`
}

type answerResponse struct {
	SessionID string          `json:"session_id,omitempty"`
	Answer    string          `json:"answer"`
	Sources   []sourcePayload `json:"sources"`
}

type sourcePayload struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

func (h *AnswerHandler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req answerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("answer decode error", zap.Error(err))
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	inbound := make([]session.Turn, 0, len(req.Messages))
	now := time.Now()
	for _, m := range req.Messages {
		inbound = append(inbound, session.Turn{Role: m.Role, Content: m.Content, Timestamp: now})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	sessionID, resp := h.runExchange(ctx, req.SessionID, inbound)

	sources := make([]sourcePayload, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, sourcePayload{Title: s.Title, Link: s.Link, Snippet: s.Snippet})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(answerResponse{
		SessionID: sessionID,
		Answer:    resp.Answer,
		Sources:   sources,
	})
}

// runExchange executes one pipeline exchange. The session lock is held
// from history read through exchange append, so concurrent requests for
// the same session see each other's completed exchanges, never a torn one.
// When the session store is unavailable the request still runs,
// statelessly, over the inbound turns alone.
func (h *AnswerHandler) runExchange(ctx context.Context, sessionID string, inbound []session.Turn) (string, pipeline.Response) {
	if h.sessions == nil {
		return "", h.pipeline.Answer(ctx, inbound)
	}

	unlock := h.sessions.LockSession(sessionID)
	defer unlock()

	sess, err := h.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		h.logger.Warn("Session store unavailable, answering statelessly",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return "", h.pipeline.Answer(ctx, inbound)
	}

	history := append(append([]session.Turn(nil), sess.History...), inbound...)
	resp := h.pipeline.Answer(ctx, history)

	turns := append(append([]session.Turn(nil), inbound...),
		session.Turn{Role: "assistant", Content: resp.Answer, Timestamp: time.Now()})
	if _, err := h.sessions.AppendTurns(ctx, sess.ID, turns...); err != nil {
		h.logger.Warn("Failed to persist exchange",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
	return sess.ID, resp
}

func validateMessages(messages []turnPayload) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages is required and must be a non-empty list")
	}
	hasUser := false
	for i, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("messages[%d].role must be user or assistant", i)
		}
		if m.Content == "" {
			return fmt.Errorf("messages[%d].content must not be empty", i)
		}
		if m.Role == "user" {
			hasUser = true
		}
	}
	if !hasUser {
		return fmt.Errorf("messages must contain at least one user turn")
	}
	return nil
}

func (h *AnswerHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if h.sessions != nil {
		if err := h.sessions.RedisWrapper().Ping(r.Context()).Err(); err != nil {
			// Degraded, not down: answers still work statelessly.
			status = map[string]string{"status": "degraded", "session_store": err.Error()}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// StartServer starts the answers API server.
func StartServer(port int, handler *AnswerHandler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Starting answers API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Answers API server failed", zap.Error(err))
		}
	}()
	return srv
}
