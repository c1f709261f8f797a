package governance

import (
	"net/http"

	"github.com/stakehaus/fairplane/internal/api/httpx"
)

func registerRoutes(mux *http.ServeMux, h handlers, auth httpx.Middleware) {
	if mux == nil {
		return
	}
	mux.Handle(http.MethodPost+" /v1/actions", httpx.Chain(http.HandlerFunc(h.handleAction), auth))
}
