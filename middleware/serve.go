package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/isr"
	"github.com/saiset-co/sai-isr/types"
)

const cacheStatusHeader = "X-Cache-Status"

// ServeMiddleware answers GET requests straight from the cache and hands
// everything it cannot answer to the next handler, which is expected to
// render the page itself.
type ServeMiddleware struct {
	engine *isr.Engine
	logger types.Logger
}

func NewServeMiddleware(engine *isr.Engine, logger types.Logger) *ServeMiddleware {
	return &ServeMiddleware{
		engine: engine,
		logger: logger,
	}
}

func (m *ServeMiddleware) Handle(ctx *fasthttp.RequestCtx, next Handler) {
	if !ctx.IsGet() {
		next(ctx)
		return
	}

	req, err := httpRequest(ctx)
	if err != nil {
		m.logger.Warn("failed to convert inbound request",
			zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
		next(ctx)
		return
	}

	result, ok := m.engine.Serve(req.Context(), req)
	if !ok {
		next(ctx)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/html; charset=utf-8")
	if result.Stale {
		ctx.Response.Header.Set(cacheStatusHeader, "STALE")
	} else {
		ctx.Response.Header.Set(cacheStatusHeader, "HIT")
	}
	ctx.SetBody(result.Content)
}
