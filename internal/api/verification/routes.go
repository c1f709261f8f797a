package verification

import "net/http"

func registerRoutes(mux *http.ServeMux, h handlers) {
	if mux == nil {
		return
	}
	mux.HandleFunc(http.MethodGet+" /v1/verify/{commitmentID}", h.handleRevealByID)
	mux.HandleFunc(http.MethodGet+" /v1/verify", h.handleRevealByDigest)
	mux.HandleFunc(http.MethodGet+" /v1/ledger/verify", h.handleLedgerVerify)
	mux.HandleFunc(http.MethodGet+" /v1/registry", h.handleRegistry)
}
