package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stuKim0221/smart-lotto/logger"
	"github.com/stuKim0221/smart-lotto/pkg/business"
	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/models"
	"github.com/stuKim0221/smart-lotto/pkg/ticket"
	"github.com/stuKim0221/smart-lotto/services"
)

const (
	defaultDrawPage = 20
	maxDrawPage     = 500
	statsCacheTTL   = 10 * time.Minute
	maxCombinations = 50
)

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	}
	if latest, err := s.deps.Draws.MaxRound(r.Context()); err == nil {
		body["latest_round"] = latest
	} else {
		body["status"] = "degraded"
		body["store_error"] = err.Error()
	}
	if s.deps.Sync != nil {
		body["sync_phase"] = s.deps.Sync.Status().Phase
	}
	if s.deps.StatsCache != nil {
		body["cache_entries"] = s.deps.StatsCache.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleListDraws 获取开奖列表. Without from/to the latest page is returned.
func (s *Server) handleListDraws(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ctx := r.Context()

	from, _ := strconv.Atoi(query.Get("from"))
	to, _ := strconv.Atoi(query.Get("to"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > maxDrawPage {
		limit = defaultDrawPage
	}

	if from <= 0 && to <= 0 {
		maxRound, err := s.deps.Draws.MaxRound(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		to = maxRound
		from = maxRound - limit + 1
	}
	if from < 1 {
		from = 1
	}
	if to > 0 && to < from {
		writeError(w, fmt.Errorf("%w: from %d is after to %d", common.ErrInvalidInput, from, to))
		return
	}

	draws, err := s.deps.Draws.List(ctx, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(draws) > limit {
		draws = draws[len(draws)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draws": draws,
		"from":  from,
		"to":    to,
		"count": len(draws),
	})
}

func (s *Server) handleLatestDraw(w http.ResponseWriter, r *http.Request) {
	maxRound, err := s.deps.Draws.MaxRound(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if maxRound == 0 {
		writeError(w, fmt.Errorf("no draws stored: %w", common.ErrNotFound))
		return
	}
	s.writeDraw(r.Context(), w, maxRound)
}

func (s *Server) handleGetDraw(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(mux.Vars(r)["round"])
	if err != nil || round < 1 {
		writeError(w, &common.InvalidRoundError{Round: round})
		return
	}
	s.writeDraw(r.Context(), w, round)
}

func (s *Server) writeDraw(ctx context.Context, w http.ResponseWriter, round int) {
	draw, ok, err := s.deps.Draws.Get(ctx, round)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("round %d: %w", round, common.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draw":      draw,
		"finalized": draw.PrizeTable.Finalized(),
	})
}

// ticketRequest carries either a scanned payload or manually entered games.
type ticketRequest struct {
	Payload string  `json:"payload,omitempty"`
	Round   int     `json:"round,omitempty"`
	Games   [][]int `json:"games,omitempty"`
}

func (req ticketRequest) toTicket() (models.Ticket, error) {
	if req.Payload != "" {
		return ticket.Decode(req.Payload)
	}
	if len(req.Games) == 0 {
		return models.Ticket{}, fmt.Errorf("%w: payload or games required", common.ErrInvalidInput)
	}
	return ticket.FromManualEntry(req.Round, req.Games)
}

func (s *Server) handleDecodeTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := req.toTicket()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket": t})
}

type evaluationSummary struct {
	Winning      int             `json:"winning"`
	Pending      bool            `json:"pending"`
	SettledTotal decimal.Decimal `json:"settled_total"`
}

// handleEvaluateTicket 评估彩票
func (s *Server) handleEvaluateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := req.toTicket()
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := s.deps.Evaluation.EvaluateTicket(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := services.WriteEvaluationsCSV(w, t, results); err != nil {
			logger.Errorf("[API] CSV evaluation export failed: %v", err)
		}
		return
	}

	summary := evaluationSummary{SettledTotal: decimal.Zero}
	for _, res := range results {
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveEvaluation(res.Tier.String())
		}
		if !res.Won() {
			continue
		}
		summary.Winning++
		if res.Payout == nil || res.Payout.State != models.PayoutFinal {
			summary.Pending = true
			continue
		}
		summary.SettledTotal = summary.SettledTotal.Add(res.Payout.Amount)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":  t,
		"results": results,
		"summary": summary,
	})
}

type combinationRequest struct {
	Preset        string               `json:"preset,omitempty"`
	Filters       *models.FilterPolicy `json:"filters,omitempty"`
	Count         int                  `json:"count"`
	MaxAttempts   int                  `json:"max_attempts,omitempty"`
	ExcludeRecent *int                 `json:"exclude_recent,omitempty"`
}

// handleGenerate 生成号码组合
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body combinationRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Count > maxCombinations {
		writeError(w, fmt.Errorf("%w: at most %d combinations per request", common.ErrInvalidInput, maxCombinations))
		return
	}

	req := models.CombinationRequest{Count: body.Count, MaxAttempts: body.MaxAttempts}
	switch {
	case body.Filters != nil:
		req.Filters = *body.Filters
	case body.Preset != "":
		preset, ok := s.deps.Presets[body.Preset]
		if !ok {
			writeError(w, fmt.Errorf("%w: unknown preset %q", common.ErrInvalidInput, body.Preset))
			return
		}
		req.Filters = preset
	}
	if limit := s.config.GeneratorMaxAttempts; limit > 0 && (req.MaxAttempts == 0 || req.MaxAttempts > limit) {
		req.MaxAttempts = limit
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	exclude := s.config.ExcludeRecentRounds
	if body.ExcludeRecent != nil {
		exclude = *body.ExcludeRecent
	}

	sets, err := s.deps.Generation.Generate(r.Context(), req, exclude)
	if err != nil {
		writeError(w, err)
		return
	}

	analyses := make([]business.Analysis, len(sets))
	for i, set := range sets {
		analyses[i] = s.deps.Generation.Analyze(set)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"combinations": analyses,
		"count":        len(analyses),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Numbers []int `json:"numbers"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	set, err := models.NewNumberSet(body.Numbers)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Generation.Analyze(set))
}

// handleNumberStats 号码频率统计. Results are cached per latest round.
func (s *Server) handleNumberStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lookback, _ := strconv.Atoi(r.URL.Query().Get("lookback"))
	includeBonus := r.URL.Query().Get("bonus") == "true"

	maxRound, err := s.deps.Draws.MaxRound(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	key, err := services.CacheKey("stats", map[string]interface{}{
		"lookback": lookback,
		"bonus":    includeBonus,
		"latest":   maxRound,
	})
	if err != nil {
		logger.Errorf("[API] %v", err)
	}
	if s.deps.StatsCache != nil && key != "" {
		if cached, ok := s.deps.StatsCache.Get(ctx, key); ok {
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	stats, err := s.deps.Generation.Statistics(ctx, lookback, includeBonus)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.StatsCache != nil && key != "" {
		s.deps.StatsCache.Set(ctx, key, data, statsCacheTTL)
	}
	w.Header().Set("X-Cache", "MISS")
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, fmt.Errorf("sync scheduler: %w", common.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Sync.Status())
}

// handleTriggerSync runs one manual cycle and returns its report.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, fmt.Errorf("sync scheduler: %w", common.ErrNotFound))
		return
	}

	logger.Println("[API] Received manual sync request")
	report, err := s.deps.Sync.RunCycle(r.Context(), services.TriggerManual)
	if err != nil {
		if report.CycleID == "" {
			writeError(w, err)
			return
		}
		category := common.CategoryOf(err)
		writeJSON(w, statusFor(err, category), map[string]interface{}{
			"report":   report,
			"error":    err.Error(),
			"category": category,
		})
		return
	}

	logger.Printf("[API] Sync %s done: %d applied, %d failed", report.CycleID, len(report.Applied), len(report.Failures))
	writeJSON(w, http.StatusOK, map[string]interface{}{"report": report})
}

func (s *Server) handleExportDraws(w http.ResponseWriter, r *http.Request) {
	draws, err := s.deps.Draws.List(r.Context(), 1, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="draws.csv"`)
	if err := services.WriteDrawsCSV(w, draws); err != nil {
		logger.Errorf("[API] CSV export failed: %v", err)
	}
}
