// Package server exposes the reading-session workflow as a JSON API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"tarotreader/internal/app"
	"tarotreader/internal/ratelimit"
	"tarotreader/internal/usertoken"
	"tarotreader/internal/util"
	"tarotreader/pkg/deck"
	"tarotreader/pkg/domain"
	"tarotreader/pkg/storage"
)

const artworkURLTTL = 15 * time.Minute

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	// Artwork is optional; without it /api/cards returns raw object keys.
	Artwork storage.ArtworkStore
	// LLMLimiter is optional; when set it caps per-user calls on the
	// endpoints that reach the model.
	LLMLimiter *ratelimit.FixedWindowLimiter
	// TrustedProxies controls forwarded-header trust when resolving
	// client IPs for request logs.
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the tarot service.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	artwork        storage.ArtworkStore
	llmLimiter     *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		artwork:        cfg.Artwork,
		llmLimiter:     cfg.LLMLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("tarot", s.trustedProxies, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/cards", s.handleCards)
	s.mux.HandleFunc("GET /api/shared", s.handleShared)

	s.mux.Handle("POST /api/selections", s.withUser(s.handleStartSelection))
	s.mux.Handle("POST /api/selections/{id}/cards", s.withUser(s.handleTapCard))
	s.mux.Handle("GET /api/selections/{id}", s.withUser(s.handleSelectionState))
	s.mux.Handle("DELETE /api/selections/{id}", s.withUser(s.handleCloseSelection))

	s.mux.Handle("POST /api/readings", s.withUser(s.handleCreateReading))
	s.mux.Handle("GET /api/readings", s.withUser(s.handleListReadings))
	s.mux.Handle("GET /api/readings/{id}", s.withUser(s.handleGetReading))
	s.mux.Handle("POST /api/readings/{id}/messages", s.withUser(s.handleSendMessage))
	s.mux.Handle("POST /api/readings/{id}/questions", s.withUser(s.handleGenerateQuestion))
	s.mux.Handle("POST /api/readings/{id}/share", s.withUser(s.handleShare))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cardResponse struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// handleCards returns the catalog. With object storage configured the
// image URLs are short-lived presigned links; otherwise the raw object
// keys go out and the client resolves them itself.
func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	cards := deck.Cards()
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		url := c.ImageKey
		if s.artwork != nil {
			presigned, err := s.artwork.ImageURL(r.Context(), c.ImageKey, artworkURLTTL)
			if err != nil {
				writeError(w, http.StatusBadGateway, "artwork storage unavailable")
				return
			}
			url = presigned
		}
		out = append(out, cardResponse{Name: c.Name, ImageURL: url})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": out})
}

func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	shareID := strings.TrimSpace(r.URL.Query().Get("shareId"))
	if shareID == "" {
		writeError(w, http.StatusBadRequest, "shareId is required")
		return
	}
	sess, err := s.app.LoadSharedSession(shareID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.GetOrCreateUser(identity.Subject, identity.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve user")
			return
		}
		next(w, r, user)
	})
}

// selection handlers

type startSelectionRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleStartSelection(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req startSelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	status, err := s.app.StartSelection(user, req.Question)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

type tapCardRequest struct {
	Card string `json:"card"`
}

func (s *Server) handleTapCard(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req tapCardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Card) == "" {
		writeError(w, http.StatusBadRequest, "card is required")
		return
	}
	if !deck.Contains(req.Card) {
		writeError(w, http.StatusBadRequest, "unknown card")
		return
	}
	status, err := s.app.TapCard(user, r.PathValue("id"), req.Card)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSelectionState(w http.ResponseWriter, r *http.Request, user domain.User) {
	status, err := s.app.SelectionState(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCloseSelection(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.CloseSelection(user, r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reading handlers

type createReadingRequest struct {
	Question string                `json:"question"`
	Cards    []domain.SelectedCard `json:"cards"`
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowLLM(w, user) {
		return
	}
	var req createReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	hand := domain.Hand(req.Cards)
	if err := hand.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, c := range hand {
		if !deck.Contains(c.Name) {
			writeError(w, http.StatusBadRequest, "unknown card")
			return
		}
	}
	reading, err := s.app.GenerateReading(r.Context(), user, req.Question, hand)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request, user domain.User) {
	readings, err := s.app.ListReadings(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request, user domain.User) {
	sess, err := s.app.LoadSession(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sendMessageRequest struct {
	Message string `json:"message"`
	// Option carries a tapped quick-reply; it is sent exactly like a
	// typed message.
	Option string `json:"option"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowLLM(w, user) {
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := req.Message
	if strings.TrimSpace(text) == "" {
		text = req.Option
	}
	msgs, err := s.app.SendMessage(r.Context(), user, r.PathValue("id"), text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if msgs == nil {
		// Blank input is a documented no-op; make that visible as an
		// empty list rather than a JSON null.
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type generateQuestionRequest struct {
	TimeFrame string `json:"timeFrame"`
}

func (s *Server) handleGenerateQuestion(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowLLM(w, user) {
		return
	}
	var req generateQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	timeFrame := domain.TimeFrame(strings.ToUpper(strings.TrimSpace(req.TimeFrame)))
	if !timeFrame.Valid() {
		writeError(w, http.StatusBadRequest, "timeFrame must be PAST, PRESENT or FUTURE")
		return
	}
	msg, err := s.app.GenerateDiscussionQuestion(r.Context(), user, r.PathValue("id"), timeFrame)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, user domain.User) {
	url, err := s.app.ShareReading(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareUrl": url})
}

func (s *Server) allowLLM(w http.ResponseWriter, user domain.User) bool {
	if s.llmLimiter == nil || s.llmLimiter.Allow(user.ID) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrReadingNotFound), errors.Is(err, app.ErrSelectionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrSendInFlight):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
