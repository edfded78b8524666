// internal/web/server.go

// Package web serves the HTTP API, the action webhook and the shop page.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"goldencobra/internal/bot"
	"goldencobra/internal/logger"
	"goldencobra/internal/spending"
)

const (
	defaultLeaderboard = 10
	maxLeaderboard     = 100
	shopLeaderboard    = 5
	maxActionBody      = 1 << 16
)

// WebhookSecretHeader carries the shared secret of the action webhook, named
// after the header Telegram sends to bot webhooks.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

//go:embed templates/nft-shop.html
var templates embed.FS

var shopTemplate = template.Must(template.ParseFS(templates, "templates/nft-shop.html"))

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Health and Metrics may be nil.
// An empty WebhookSecret leaves the action webhook open.
type Deps struct {
	Service       spending.Service
	Bot           *bot.Router
	Health        Pinger
	Metrics       http.Handler
	Log           zerolog.Logger
	WebhookSecret string
}

// Server holds the HTTP handlers.
type Server struct {
	svc     spending.Service
	bot     *bot.Router
	health  Pinger
	metrics http.Handler
	log     zerolog.Logger
	secret  []byte
}

func NewServer(deps Deps) *Server {
	s := &Server{
		svc:     deps.Service,
		bot:     deps.Bot,
		health:  deps.Health,
		metrics: deps.Metrics,
		log:     deps.Log,
	}
	if deps.WebhookSecret != "" {
		s.secret = []byte(deps.WebhookSecret)
	}
	return s
}

// Routes builds the chi router with the middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recovery(s.log))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/nft-shop.html", s.handleShop)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", s.handleData)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/users/{identity}", s.handleUser)
		r.With(s.requireSecret).Post("/actions", s.handleAction)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	top, err := s.svc.TopUsers(ctx, defaultLeaderboard)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := s.svc.TotalSpent(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{
		TotalSpent: total,
		TopUsers:   leaderboard(top, s.svc.Ranks()),
		Goals:      goalViews(s.svc.Goals(), total),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboard
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboard {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	top, err := s.svc.TopUsers(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: leaderboard(top, s.svc.Ranks())})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.GetUser(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	table := s.svc.Ranks()
	rank := table.Resolve(user.Spent)
	resp := UserResponse{User: user, Rank: rank}
	if next, ok := table.Next(rank); ok {
		left := next.Threshold.Sub(user.Spent)
		resp.NextRank = &next
		resp.ToNextRank = &left
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireSecret rejects webhook calls that lack the configured secret.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != nil && subtle.ConstantTimeCompare([]byte(r.Header.Get(WebhookSecretHeader)), s.secret) != 1 {
			logger.FromContext(r.Context()).Warn().Msg("action rejected: bad webhook secret")
			writeError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action bot.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody)).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action body")
		return
	}
	if action.RequestID == "" {
		action.RequestID = chimw.GetReqID(r.Context())
	}

	reply, err := s.bot.Handle(r.Context(), action)
	resp := ActionResponse{RequestID: action.RequestID, Reply: reply}
	if err != nil {
		resp.Error = bot.ErrorKind(err)
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type shopPage struct {
	TotalSpent string
	Leaders    []LeaderboardEntry
}

func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	top, err := s.svc.TopUsers(ctx, shopLeaderboard)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := s.svc.TotalSpent(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := shopPage{TotalSpent: bot.FormatStars(total), Leaders: leaderboard(top, s.svc.Ranks())}
	if err := shopTemplate.Execute(w, page); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("render shop page")
	}
}

// fail logs err and writes the matching status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Msg("request rejected")
	}

	msg := http.StatusText(status)
	var verr *spending.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Error()
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch bot.ErrorKind(err) {
	case bot.KindValidation, bot.KindUnknownAction:
		return http.StatusBadRequest
	case bot.KindNotFound:
		return http.StatusNotFound
	case bot.KindRateLimited:
		return http.StatusTooManyRequests
	case bot.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
