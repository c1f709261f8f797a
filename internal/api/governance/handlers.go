// Package governance exposes the quorum action endpoint protected by the
// admin grant middleware.
package governance

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/stakehaus/fairplane/internal/api/admingrant"
	"github.com/stakehaus/fairplane/internal/api/httpx"
	domain "github.com/stakehaus/fairplane/internal/governance"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/requestctx"
)

// gateService is the quorum gate surface used by governance handlers.
type gateService interface {
	RequestOrApprove(ctx context.Context, req domain.ActionRequest) (domain.GateResult, error)
}

type handlers struct {
	gate gateService
}

// Module bundles the governance routes and their auth middleware.
type Module struct {
	handlers handlers
	grants   admingrant.Config
}

// NewModule constructs the governance module.
func NewModule(gate gateService, grants admingrant.Config) *Module {
	return &Module{handlers: handlers{gate: gate}, grants: grants}
}

// Register mounts the governance routes on mux.
func (m *Module) Register(mux *http.ServeMux) {
	if m == nil || mux == nil {
		return
	}
	registerRoutes(mux, m.handlers, admingrant.Middleware(m.grants, admingrant.RoleOperator))
}

// actionRequest is the JSON body of POST /v1/actions. The voting admin's
// identity comes from the verified grant, never from the body.
type actionRequest struct {
	Node          string          `json:"node"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Justification string          `json:"justification"`
	UnlockAt      *time.Time      `json:"unlock_at,omitempty"`
}

func (h handlers) handleAction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestctx.AdminFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin identity is required"))
		return
	}

	var body actionRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, r, apperrors.Wrap(apperrors.CodeActionKindUnknown, "invalid action request", err))
		return
	}

	result, err := h.gate.RequestOrApprove(r.Context(), domain.ActionRequest{
		Node:          body.Node,
		Kind:          domain.Kind(body.Kind),
		Payload:       body.Payload,
		AdminID:       identity.AdminID,
		Justification: body.Justification,
		UnlockAt:      body.UnlockAt,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, result)
}
