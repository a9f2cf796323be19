package middleware

import (
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-isr/isr"
	"github.com/saiset-co/sai-isr/logger"
	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

func decodeInvalidateResponse(t *testing.T, ctx *fasthttp.RequestCtx) *types.InvalidateResponse {
	t.Helper()
	var response types.InvalidateResponse
	if err := utils.Unmarshal(ctx.Response.Body(), &response); err != nil {
		t.Fatalf("decode response %q: %v", ctx.Response.Body(), err)
	}
	return &response
}

func TestInvalidateHandlerSuccess(t *testing.T) {
	renderer := &stubRenderer{html: `<html><body>rebuilt</body><script id="isr-state" type="application/json">{"revalidate":60}</script></html>`}
	engine := newTestEngine(t, nil, isr.Options{Renderer: renderer})

	seedEntry(t, engine, "/page", "old", types.EntryMeta{
		Revalidate: types.Revalidate(300),
		BuildID:    "test-build",
		CreatedAt:  time.Now(),
	})

	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodPost, "http://example.com/invalidate",
		[]byte(`{"token":"test-secret","urlsToInvalidate":["/page","/missing"]}`))
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusOK {
		t.Fatalf("status = %d, body %q", got, ctx.Response.Body())
	}

	response := decodeInvalidateResponse(t, ctx)
	if response.Status != "success" {
		t.Errorf("status = %q, want success", response.Status)
	}
	if len(response.InvalidatedURLs) != 1 || response.InvalidatedURLs[0] != "/page" {
		t.Errorf("InvalidatedURLs = %v", response.InvalidatedURLs)
	}
	if len(response.NotInCache) != 1 || response.NotInCache[0] != "/missing" {
		t.Errorf("NotInCache = %v", response.NotInCache)
	}
}

func TestInvalidateHandlerUnauthorized(t *testing.T) {
	engine := newTestEngine(t, nil, isr.Options{})
	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodPost, "http://example.com/invalidate",
		[]byte(`{"token":"wrong","urlsToInvalidate":["/page"]}`))
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusUnauthorized {
		t.Errorf("status = %d, want 401", got)
	}
	if response := decodeInvalidateResponse(t, ctx); response.Status != "error" {
		t.Errorf("status = %q", response.Status)
	}
}

func TestInvalidateHandlerNoSecretConfigured(t *testing.T) {
	engine := newTestEngine(t, func(c *types.ISRConfig) {
		c.InvalidateSecret = ""
	}, isr.Options{})
	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodPost, "http://example.com/invalidate",
		[]byte(`{"token":"anything","urlsToInvalidate":["/page"]}`))
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusUnauthorized {
		t.Errorf("status = %d, want 401", got)
	}
}

func TestInvalidateHandlerMalformedBody(t *testing.T) {
	engine := newTestEngine(t, nil, isr.Options{})
	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodPost, "http://example.com/invalidate", []byte(`{"token":`))
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestInvalidateHandlerEmptyURLList(t *testing.T) {
	engine := newTestEngine(t, nil, isr.Options{})
	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodPost, "http://example.com/invalidate",
		[]byte(`{"token":"test-secret","urlsToInvalidate":[]}`))
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestInvalidateHandlerRejectsGet(t *testing.T) {
	engine := newTestEngine(t, nil, isr.Options{})
	handler := NewInvalidateHandler(engine, logger.NewNopLogger())

	ctx := newRequestCtx(fasthttp.MethodGet, "http://example.com/invalidate", nil)
	handler.Handle(ctx)

	if got := ctx.Response.StatusCode(); got != fasthttp.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", got)
	}
}
