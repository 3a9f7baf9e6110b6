// internal/app/features/mpesa/handler.go
package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/jamiifunds/internal/app/reconcile"
	"github.com/dalemusser/jamiifunds/internal/app/system/limits"
	"github.com/dalemusser/jamiifunds/internal/app/system/timeouts"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"go.uber.org/zap"
)

// Processor reconciles one decoded callback.
type Processor interface {
	Process(ctx context.Context, cb reconcile.Callback) (reconcile.Outcome, error)
}

// Handler receives mobile-money result callbacks.
type Handler struct {
	Engine Processor
	Log    *zap.Logger
}

func NewHandler(engine Processor, logger *zap.Logger) *Handler {
	return &Handler{Engine: engine, Log: logger}
}

type ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// ServeCallback handles POST /mpesa/callback.
//
// Every well-formed callback is acknowledged with
//
//	{ "ResultCode":0, "ResultDesc":"Accepted" }
//
// including payments from unknown phones, which are recorded for follow-up.
// Malformed payloads get 400. Storage failures get 500 so the provider
// redelivers.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limits.MaxCallbackBody))
	if err != nil {
		h.reply(w, http.StatusBadRequest, ack{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	cb, err := decodeCallback(body)
	if err != nil {
		h.Log.Warn("mpesa callback rejected", zap.Error(err))
		h.reply(w, http.StatusBadRequest, ack{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	out, err := h.Engine.Process(ctx, cb)
	switch {
	case err == nil:
		h.Log.Debug("mpesa callback processed",
			zap.String("checkout_id", cb.CheckoutID),
			zap.String("status", string(out.Status)),
			zap.String("match", string(out.Match)),
			zap.Bool("duplicate", out.Duplicate))
	case apperr.IsNonFatal(err):
		h.Log.Info("mpesa callback from unknown payer",
			zap.String("checkout_id", cb.CheckoutID))
	case errors.Is(err, apperr.ErrValidation):
		h.Log.Warn("mpesa callback invalid", zap.Error(err), zap.String("checkout_id", cb.CheckoutID))
		h.reply(w, http.StatusBadRequest, ack{ResultCode: 1, ResultDesc: "Rejected"})
		return
	default:
		h.Log.Error("mpesa callback failed", zap.Error(err), zap.String("checkout_id", cb.CheckoutID))
		h.reply(w, http.StatusInternalServerError, ack{ResultCode: 1, ResultDesc: "Temporary failure"})
		return
	}

	h.reply(w, http.StatusOK, ack{ResultCode: 0, ResultDesc: "Accepted"})
}

func (h *Handler) reply(w http.ResponseWriter, status int, body ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
