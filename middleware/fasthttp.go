package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/valyala/fasthttp"
)

// Handler is a terminal fasthttp handler in a middleware chain.
type Handler func(ctx *fasthttp.RequestCtx)

// httpRequest converts a fasthttp request context into the net/http form
// the engine works with. The body is copied; fasthttp reclaims its buffers
// as soon as the handler returns.
//
// RequestCtx is never used as a context.Context here: its Done channel
// belongs to the owning fasthttp.Server and panics on a detached ctx. The
// engine applies its own per-operation deadlines.
func httpRequest(ctx *fasthttp.RequestCtx) (*http.Request, error) {
	var body io.Reader
	if b := ctx.PostBody(); len(b) > 0 {
		body = bytes.NewReader(append([]byte(nil), b...))
	}

	req, err := http.NewRequestWithContext(context.Background(), string(ctx.Method()), ctx.URI().String(), body)
	if err != nil {
		return nil, err
	}

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})

	return req, nil
}
