package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"backtest-core/internal/eventbus"
	"backtest-core/internal/store"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

type strategySummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// listStrategyPresets returns the strategy presets loaded at startup.
func (s *Server) listStrategyPresets(c *gin.Context) {
	out := make([]strategySummary, 0, len(s.Presets))
	for _, p := range s.Presets {
		out = append(out, strategySummary{ID: p.ID, Name: p.Name, Type: string(p.Type), Symbol: p.Symbol})
	}
	c.JSON(http.StatusOK, out)
}

// submitRun runs a simulation synchronously and persists its output.
func (s *Server) submitRun(c *gin.Context) {
	clientID := CurrentClientID(c)
	if clientID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "client not authenticated")
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	runID := uuid.NewString()
	started := time.Now()
	ctx := c.Request.Context()

	if s.Store != nil {
		if err := s.Store.CreateRun(ctx, runID, req.Driver, len(req.Close), 1); err != nil {
			respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
			return
		}
	}
	s.publish(eventbus.EventRunStarted, gin.H{"run_id": runID})

	result, err := runSimulation(req, s.Presets)
	if err != nil {
		s.finishRun(ctx, runID, "failed", err.Error())
		s.publish(eventbus.EventRunFailed, gin.H{"run_id": runID, "error": err.Error()})
		respondError(c, http.StatusUnprocessableEntity, "RUN_FAILED", err.Error())
		return
	}

	if s.Store != nil {
		if err := s.persistRun(ctx, runID, result); err != nil {
			respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
			return
		}
	}

	s.finishRun(ctx, runID, "done", "")
	s.publish(eventbus.EventRunFinished, gin.H{"run_id": runID, "fills": len(result.Fills)})

	elapsed := time.Since(started)
	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"bars":         result.Bars,
		"fills":        humanize.Comma(int64(len(result.Fills))),
		"final_value":  result.FinalValue,
		"total_profit": result.TotalProfit,
		"duration_ms":  elapsed.Milliseconds(),
		"entry_trades": result.EntryTrades,
		"exit_trades":  result.ExitTrades,
		"positions":    result.Positions,
		"value":        result.Value,
	})
}

func (s *Server) persistRun(ctx context.Context, runID string, result *RunResult) error {
	if err := s.Store.SaveOrderRecords(ctx, runID, 0, result.Fills); err != nil {
		return err
	}
	if err := s.Store.SaveTradeRecords(ctx, runID, 0, "entry", result.EntryTrades); err != nil {
		return err
	}
	if err := s.Store.SaveTradeRecords(ctx, runID, 0, "exit", result.ExitTrades); err != nil {
		return err
	}
	return s.Store.SaveTradeRecords(ctx, runID, 0, "position", result.Positions)
}

func (s *Server) finishRun(ctx context.Context, runID, status, errMsg string) {
	if s.Store == nil {
		return
	}
	if err := s.Store.FinishRun(ctx, runID, status, errMsg); err != nil {
		log.Printf("finishRun: failed to mark run %s %s: %v", runID, status, err)
	}
}

func (s *Server) publish(event eventbus.Event, payload any) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(event, payload)
}

// getRun fetches a persisted run's metadata.
func (s *Server) getRun(c *gin.Context) {
	if s.Store == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "no store configured")
		return
	}
	id := c.Param("id")
	run, err := s.Store.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if run == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "run not found")
		return
	}
	c.JSON(http.StatusOK, formatRun(run))
}

func formatRun(r *store.Run) gin.H {
	h := gin.H{
		"id":         r.ID,
		"driver":     r.Driver,
		"bars":       r.Bars,
		"cols":       r.Cols,
		"status":     r.Status,
		"started_at": humanize.Time(r.StartedAt),
	}
	if r.Error != "" {
		h["error"] = r.Error
	}
	return h
}

// getRunOrders returns every persisted fill for a run.
func (s *Server) getRunOrders(c *gin.Context) {
	if s.Store == nil {
		respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "no store configured")
		return
	}
	id := c.Param("id")
	orders, err := s.Store.ListOrderRecords(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}
