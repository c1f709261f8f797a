package fairness

import "net/http"

func registerRoutes(mux *http.ServeMux, h handlers) {
	if mux == nil {
		return
	}
	mux.HandleFunc(http.MethodPost+" /v1/commitments", h.handleCommit)
	mux.HandleFunc(http.MethodPost+" /v1/commitments/{commitmentID}/resolve", h.handleResolve)
}
