package isr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

// A rendered page reports its revalidate directive and upstream errors in
// an embedded JSON block:
//
//	<script id="isr-state" type="application/json">{"revalidate":60}</script>
//
// Pages without the block get the configured default revalidate and no
// reported errors.
const stateMarker = `id="isr-state"`

func extractRenderState(html string) *types.RenderState {
	markerIdx := strings.Index(html, stateMarker)
	if markerIdx < 0 {
		return nil
	}

	openEnd := strings.Index(html[markerIdx:], ">")
	if openEnd < 0 {
		return nil
	}

	bodyStart := markerIdx + openEnd + 1
	bodyEnd := strings.Index(html[bodyStart:], "</script>")
	if bodyEnd < 0 {
		return nil
	}

	raw := strings.TrimSpace(html[bodyStart : bodyStart+bodyEnd])
	if raw == "" {
		return nil
	}

	var state types.RenderState
	if err := utils.Unmarshal([]byte(raw), &state); err != nil {
		return nil
	}

	return &state
}

// defaultModifyGeneratedHTML is the transform applied to freshly rendered
// markup when the embedder supplies none. It stamps a trailing comment so
// a cached response is recognizable in view-source.
func defaultModifyGeneratedHTML(req *http.Request, html string, revalidate *int) string {
	var directive string
	switch {
	case revalidate == nil:
		directive = "none"
	case *revalidate == 0:
		directive = "forever"
	default:
		directive = fmt.Sprintf("%ds", *revalidate)
	}

	return html + fmt.Sprintf("\n<!-- cached: revalidate %s -->", directive)
}
