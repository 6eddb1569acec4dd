package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"burgerank/internal/domain"
	"burgerank/internal/usecase/match"
	"burgerank/internal/usecase/ranking"
	"burgerank/internal/usecase/topfive"
)

// MatchService: операции матча, доступные пользователю.
type MatchService interface {
	GetMatchPair(ctx context.Context, userID string) (match.Pair, error)
	SubmitMatch(ctx context.Context, userID string, req match.SubmitRequest) (match.Result, error)
	GetMatchStats(ctx context.Context, userID string) (match.Stats, error)
	GetMatchHistory(ctx context.Context, userID string, limit int) ([]domain.MatchRound, error)
}

// TopFiveService: операции топ-5.
type TopFiveService interface {
	Get(ctx context.Context, userID string) (topfive.View, error)
	AutoCalculate(ctx context.Context, userID string) (topfive.Preview, error)
	Update(ctx context.Context, userID string, ids []string, provenance domain.Provenance) (domain.TopFive, error)
}

// RankingService: публичный рейтинг и управление витриной.
type RankingService interface {
	Query(ctx context.Context, q domain.RankingQuery) ([]ranking.Item, error)
	ListFeatured(ctx context.Context) ([]ranking.Item, error)
	Details(ctx context.Context, burgerID string) (ranking.Details, error)
	AssignFeatured(ctx context.Context, burgerID string, slot int) error
	ClearFeatured(ctx context.Context, slot int) error
	RequestRecompute(ctx context.Context, requestedBy string) (domain.RecomputeJob, error)
}

// Handlers связывает HTTP маршруты с сервисами движка.
type Handlers struct {
	match    MatchService
	topFive  TopFiveService
	ranking  RankingService
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandlers создаёт обработчики API.
func NewHandlers(matchSvc MatchService, topFiveSvc TopFiveService, rankingSvc RankingService, logger zerolog.Logger) *Handlers {
	return &Handlers{
		match:    matchSvc,
		topFive:  topFiveSvc,
		ranking:  rankingSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.With().Str("component", "http").Logger(),
	}
}

// Mount регистрирует маршруты API.
func (h *Handlers) Mount(r chi.Router, identitySecret, adminToken string) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/ranking", h.getRanking)
		api.Get("/ranking/featured", h.getFeatured)
		api.Get("/burgers/{id}/ranking-details", h.getRankingDetails)

		api.Group(func(user chi.Router) {
			user.Use(IdentityMiddleware(identitySecret))
			user.Get("/match/pair", h.getMatchPair)
			user.Post("/match/submit", h.submitMatch)
			user.Get("/match/stats", h.getMatchStats)
			user.Get("/match/history", h.getMatchHistory)
			user.Get("/top-five", h.getTopFive)
			user.Get("/top-five/auto", h.autoTopFive)
			user.Put("/top-five", h.updateTopFive)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(AdminMiddleware(adminToken))
			admin.Put("/featured/{slot}", h.assignFeatured)
			admin.Delete("/featured/{slot}", h.clearFeatured)
			admin.Post("/ranking/recompute", h.recompute)
		})
	})
}

type submitMatchRequest struct {
	RoundID  string `json:"round_id" validate:"required,uuid"`
	BurgerA  string `json:"burger_a" validate:"required"`
	BurgerB  string `json:"burger_b" validate:"required,nefield=BurgerA"`
	WinnerID string `json:"winner_id" validate:"required"`
}

type updateTopFiveRequest struct {
	BurgerIDs  []string `json:"burger_ids" validate:"max=5,dive,required"`
	Provenance string   `json:"provenance" validate:"omitempty,oneof=manual auto"`
}

type assignFeaturedRequest struct {
	BurgerID string `json:"burger_id" validate:"required"`
}

type rankingQuery struct {
	City       string `validate:"omitempty,max=64"`
	Type       string `validate:"omitempty,max=64"`
	SortBy     string `validate:"omitempty,oneof=ranking trending new"`
	IncludeAll bool
	Limit      int `validate:"gte=0,lte=100"`
	Offset     int `validate:"gte=0"`
}

func (h *Handlers) decode(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return h.validate.Struct(dst)
}

// fail пишет ответ по ошибке сервиса; непредвиденные ошибки логируются.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Str("request_id", RequestID(r)).Msg("http: ошибка обработки")
		WriteError(w, status, errors.New("внутренняя ошибка"))
		return
	}
	WriteError(w, status, err)
}

func (h *Handlers) getMatchPair(w http.ResponseWriter, r *http.Request) {
	pair, err := h.match.GetMatchPair(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "match_pair", err)
		return
	}
	WriteJSON(w, http.StatusOK, pair)
}

func (h *Handlers) submitMatch(w http.ResponseWriter, r *http.Request) {
	var req submitMatchRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.match.SubmitMatch(r.Context(), UserID(r.Context()), match.SubmitRequest{
		RoundID:  req.RoundID,
		BurgerA:  req.BurgerA,
		BurgerB:  req.BurgerB,
		WinnerID: req.WinnerID,
	})
	if err != nil {
		h.fail(w, r, "match_submit", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) getMatchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.match.GetMatchStats(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "match_stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

type historyItem struct {
	RoundID    string  `json:"round_id"`
	BurgerA    string  `json:"burger_a"`
	BurgerB    string  `json:"burger_b"`
	WinnerID   string  `json:"winner_id"`
	ResolvedAt string  `json:"resolved_at"`
	RatingA    float64 `json:"rating_a"`
	RatingB    float64 `json:"rating_b"`
	Points     int     `json:"points"`
}

func (h *Handlers) getMatchHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil || limit < 0 {
		WriteError(w, http.StatusBadRequest, errors.New("некорректный limit"))
		return
	}
	rounds, err := h.match.GetMatchHistory(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, r, "match_history", err)
		return
	}
	items := make([]historyItem, 0, len(rounds))
	for _, rd := range rounds {
		item := historyItem{
			RoundID:  rd.ID,
			BurgerA:  rd.BurgerA,
			BurgerB:  rd.BurgerB,
			WinnerID: rd.WinnerID,
			RatingA:  rd.RatingAAfter,
			RatingB:  rd.RatingBAfter,
			Points:   rd.Points,
		}
		if rd.ResolvedAt != nil {
			item.ResolvedAt = rd.ResolvedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"history": items})
}

func (h *Handlers) getTopFive(w http.ResponseWriter, r *http.Request) {
	view, err := h.topFive.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "top_five", err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (h *Handlers) autoTopFive(w http.ResponseWriter, r *http.Request) {
	preview, err := h.topFive.AutoCalculate(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "top_five_auto", err)
		return
	}
	WriteJSON(w, http.StatusOK, preview)
}

func (h *Handlers) updateTopFive(w http.ResponseWriter, r *http.Request) {
	var req updateTopFiveRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	top, err := h.topFive.Update(r.Context(), UserID(r.Context()), req.BurgerIDs, domain.Provenance(req.Provenance))
	if err != nil {
		h.fail(w, r, "top_five_update", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"burger_ids": top.BurgerIDs,
		"provenance": top.Provenance,
		"updated_at": top.UpdatedAt,
	})
}

func (h *Handlers) getRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := rankingQuery{
		City:   q.Get("city"),
		Type:   q.Get("type"),
		SortBy: q.Get("sortBy"),
	}
	var err error
	if v := q.Get("includeAll"); v != "" {
		if params.IncludeAll, err = strconv.ParseBool(v); err != nil {
			WriteError(w, http.StatusBadRequest, errors.New("некорректный includeAll"))
			return
		}
	}
	if params.Limit, err = intParam(r, "limit"); err != nil {
		WriteError(w, http.StatusBadRequest, errors.New("некорректный limit"))
		return
	}
	if params.Offset, err = intParam(r, "offset"); err != nil {
		WriteError(w, http.StatusBadRequest, errors.New("некорректный offset"))
		return
	}
	if err := h.validate.Struct(params); err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	items, err := h.ranking.Query(r.Context(), domain.RankingQuery{
		CityID:     params.City,
		BurgerType: params.Type,
		SortBy:     domain.SortMode(params.SortBy),
		IncludeAll: params.IncludeAll,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		h.fail(w, r, "ranking", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"burgers": items})
}

func (h *Handlers) getFeatured(w http.ResponseWriter, r *http.Request) {
	items, err := h.ranking.ListFeatured(r.Context())
	if err != nil {
		h.fail(w, r, "featured", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"burgers": items})
}

func (h *Handlers) getRankingDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.ranking.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "ranking_details", err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

func (h *Handlers) assignFeatured(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidSlot)
		return
	}
	var req assignFeaturedRequest
	if err := h.decode(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.ranking.AssignFeatured(r.Context(), req.BurgerID, slot); err != nil {
		h.fail(w, r, "featured_assign", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"burger_id": req.BurgerID, "slot": slot})
}

func (h *Handlers) clearFeatured(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidSlot)
		return
	}
	if err := h.ranking.ClearFeatured(r.Context(), slot); err != nil {
		h.fail(w, r, "featured_clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) recompute(w http.ResponseWriter, r *http.Request) {
	job, err := h.ranking.RequestRecompute(r.Context(), "admin")
	if err != nil {
		h.fail(w, r, "recompute", err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
