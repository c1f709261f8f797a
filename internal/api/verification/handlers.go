// Package verification exposes the read-only fairness surface: reveal
// payloads, chain verification, and the registry snapshot.
package verification

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/stakehaus/fairplane/internal/api/httpx"
	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	"github.com/stakehaus/fairplane/internal/governance"
	"github.com/stakehaus/fairplane/internal/ledger"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/metrics"
)

// revealService is the engine surface used by verification handlers.
type revealService interface {
	Reveal(ctx context.Context, idOrDigest string) (commitment.Reveal, error)
}

// chainService is the ledger surface used by verification handlers.
type chainService interface {
	VerifyRange(ctx context.Context, fromSeq, toSeq uint64) (ledger.VerificationResult, error)
}

// registryService is the registry surface used by verification handlers.
type registryService interface {
	Status(ctx context.Context) ([]governance.Node, error)
}

type handlers struct {
	reveals  revealService
	chain    chainService
	registry registryService
	metrics  *metrics.Metrics
}

// Module bundles the verification routes.
type Module struct {
	handlers handlers
}

// NewModule constructs the verification module.
func NewModule(reveals revealService, chain chainService, registry registryService, m *metrics.Metrics) *Module {
	return &Module{handlers: handlers{
		reveals:  reveals,
		chain:    chain,
		registry: registry,
		metrics:  m,
	}}
}

// Register mounts the verification routes on mux.
func (m *Module) Register(mux *http.ServeMux) {
	if m == nil || mux == nil {
		return
	}
	registerRoutes(mux, m.handlers)
}

func (h handlers) handleRevealByID(w http.ResponseWriter, r *http.Request) {
	commitmentID := strings.TrimSpace(r.PathValue("commitmentID"))
	if commitmentID == "" {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeNotFound, "commitment not found"))
		return
	}
	h.writeReveal(w, r, commitmentID)
}

func (h handlers) handleRevealByDigest(w http.ResponseWriter, r *http.Request) {
	digest := strings.TrimSpace(r.URL.Query().Get("digest"))
	if digest == "" {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeNotFound, "commitment not found"))
		return
	}
	h.writeReveal(w, r, digest)
}

func (h handlers) writeReveal(w http.ResponseWriter, r *http.Request, idOrDigest string) {
	h.metrics.IncVerification()
	reveal, err := h.reveals.Reveal(r.Context(), idOrDigest)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, reveal)
}

func (h handlers) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	fromSeq, err := parseSeqParam(r, "from")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	toSeq, err := parseSeqParam(r, "to")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.chain.VerifyRange(r.Context(), fromSeq, toSeq)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, result)
}

func (h handlers) handleRegistry(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.registry.Status(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func parseSeqParam(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.WithMetadata(apperrors.CodeLedgerRangeInvalid, "sequence bound must be a number", map[string]string{
			"Param": name,
		})
	}
	return seq, nil
}
