package middleware

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/isr"
	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

// InvalidateHandler is the POST endpoint for on-demand cache invalidation.
// The payload is {"token": "...", "urlsToInvalidate": ["/a", "/b"]}; the
// response reports per-URL what was rebuilt, missing, or failed.
type InvalidateHandler struct {
	engine *isr.Engine
	logger types.Logger
}

func NewInvalidateHandler(engine *isr.Engine, logger types.Logger) *InvalidateHandler {
	return &InvalidateHandler{
		engine: engine,
		logger: logger,
	}
}

func (h *InvalidateHandler) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		h.writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}

	var payload types.InvalidateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &payload); err != nil {
		h.writeError(ctx, fasthttp.StatusBadRequest, "malformed payload")
		return
	}

	report, err := h.engine.Invalidate(context.Background(), payload.Token, payload.URLs)

	switch {
	case err == nil:
		h.writeJSON(ctx, fasthttp.StatusOK, &types.InvalidateResponse{
			Status:           "success",
			InvalidateReport: report,
		})
	case types.IsError(err, types.ErrInvalidateUnauthorized),
		types.IsError(err, types.ErrNoSecretConfigured):
		h.writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
	case types.IsError(err, types.ErrInvalidatePayload):
		h.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		h.logger.Error("invalidation failed", zap.Error(err))
		h.writeError(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

func (h *InvalidateHandler) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	h.writeJSON(ctx, status, &types.InvalidateResponse{Status: "error", Error: message})
}

func (h *InvalidateHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, err := utils.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}
