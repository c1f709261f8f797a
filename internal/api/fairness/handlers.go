// Package fairness exposes the player-facing commitment endpoints.
package fairness

import (
	"context"
	"net/http"
	"strings"

	"github.com/stakehaus/fairplane/internal/api/httpx"
	"github.com/stakehaus/fairplane/internal/fairness/bet"
	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
)

// engineService is the commit-reveal surface used by the handlers.
type engineService interface {
	Commit(ctx context.Context, playerID string, declared bet.Params, clientSeed string) (commitment.Receipt, error)
	Resolve(ctx context.Context, commitmentID string, declared bet.Params) (commitment.Reveal, error)
}

type handlers struct {
	engine engineService
}

// Module bundles the commitment routes.
type Module struct {
	handlers handlers
}

// NewModule constructs the fairness module.
func NewModule(engine engineService) *Module {
	return &Module{handlers: handlers{engine: engine}}
}

// Register mounts the commitment routes on mux.
func (m *Module) Register(mux *http.ServeMux) {
	if m == nil || mux == nil {
		return
	}
	registerRoutes(mux, m.handlers)
}

// commitRequest is the JSON body of POST /v1/commitments.
type commitRequest struct {
	PlayerID   string `json:"player_id"`
	StakeCents int64  `json:"stake_cents"`
	Variant    string `json:"variant"`
	Pick       int64  `json:"pick"`
	ClientSeed string `json:"client_seed,omitempty"`
}

// resolveRequest is the JSON body of POST /v1/commitments/{id}/resolve. The
// bet is re-declared in full and compared against the sealed parameter hash.
type resolveRequest struct {
	StakeCents int64  `json:"stake_cents"`
	Variant    string `json:"variant"`
	Pick       int64  `json:"pick"`
}

func (h handlers) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body commitRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, r, apperrors.Wrap(apperrors.CodeBetVariantUnknown, "invalid commitment request", err))
		return
	}

	receipt, err := h.engine.Commit(r.Context(), body.PlayerID, bet.Params{
		StakeCents: body.StakeCents,
		Variant:    bet.Variant(body.Variant),
		Pick:       body.Pick,
	}, body.ClientSeed)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func (h handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	commitmentID := strings.TrimSpace(r.PathValue("commitmentID"))
	if commitmentID == "" {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeNotFound, "commitment not found"))
		return
	}

	var body resolveRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, r, apperrors.Wrap(apperrors.CodeBetVariantUnknown, "invalid resolve request", err))
		return
	}

	reveal, err := h.engine.Resolve(r.Context(), commitmentID, bet.Params{
		StakeCents: body.StakeCents,
		Variant:    bet.Variant(body.Variant),
		Pick:       body.Pick,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, reveal)
}
