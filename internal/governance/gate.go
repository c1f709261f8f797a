package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stakehaus/fairplane/internal/gateway"
	"github.com/stakehaus/fairplane/internal/ledger"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/metrics"
	"github.com/stakehaus/fairplane/internal/storage"
)

// casRetries bounds how many times a gate call re-reads after losing the
// node version race.
const casRetries = 3

// ActionRequest is one admin's vote on a gated operational action. The first
// vote for a kind creates the pending action with the caller as requester.
type ActionRequest struct {
	Node          string
	Kind          Kind
	Payload       json.RawMessage
	AdminID       string
	Justification string
	// UnlockAt optionally time-locks a fresh request. Ignored on approvals
	// of an existing pending action.
	UnlockAt *time.Time
}

// GateResult reports what one gate call did.
type GateResult struct {
	// Node is the node state after the call.
	Node Node `json:"node"`
	// AlreadyApproved is true when the caller had already voted; the call
	// was an idempotent no-op.
	AlreadyApproved bool `json:"already_approved"`
	// Approvals and Required describe the pending action's progress.
	Approvals int `json:"approvals"`
	Required  int `json:"required"`
	// Activated is true when this call applied the action.
	Activated bool `json:"activated"`
	// Armed is true when quorum is reached but the time-lock defers
	// activation.
	Armed bool `json:"armed"`
}

// NodeStore persists protocol nodes keyed by name.
type NodeStore interface {
	// EnsureNode atomically finds-or-creates a node. The stored row wins;
	// concurrent callers all observe the same node.
	EnsureNode(ctx context.Context, node Node) (Node, error)
	// GetNode loads a node by name. Returns storage.ErrNotFound when the
	// node doesn't exist.
	GetNode(ctx context.Context, name string) (Node, error)
	// ListNodes returns all nodes ordered by name.
	ListNodes(ctx context.Context) ([]Node, error)
	// UpdateNode compare-and-sets a node against expectedVersion, optionally
	// appending a ledger entry in the same transaction. Returns
	// storage.ErrVersionConflict when the stored version moved.
	UpdateNode(ctx context.Context, node Node, expectedVersion uint64, entry *ledger.Entry) (Node, *ledger.Entry, error)
}

// Gate resolves quorum actions against protocol nodes. All node mutations
// flow through it; application is exactly-once via the node version.
type Gate struct {
	store     NodeStore
	metrics   *metrics.Metrics
	broadcast gateway.Broadcast
	required  int
	now       func() time.Time
}

// GateConfig carries the gate's dependencies and tuning.
type GateConfig struct {
	Store     NodeStore
	Metrics   *metrics.Metrics
	Broadcast gateway.Broadcast
	// Required is the quorum threshold. Zero means DefaultRequiredApprovals.
	Required int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewGate constructs the quorum gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Required <= 0 {
		cfg.Required = DefaultRequiredApprovals
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Gate{
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		broadcast: cfg.Broadcast,
		required:  cfg.Required,
		now:       cfg.Now,
	}
}

// applyFuncs maps each kind to its application against a node. The quorum
// resolution routine itself is kind-agnostic.
var applyFuncs = map[Kind]func(Node, PendingAction) (Node, error){
	KindPause: func(node Node, _ PendingAction) (Node, error) {
		node.Status = NodePaused
		return node, nil
	},
	KindResume: func(node Node, _ PendingAction) (Node, error) {
		node.Status = NodeRunning
		return node, nil
	},
	KindParamChange: func(node Node, pending PendingAction) (Node, error) {
		var change ParamChangePayload
		if err := json.Unmarshal(pending.Payload, &change); err != nil {
			return Node{}, fmt.Errorf("decode param change payload: %w", err)
		}
		if node.Params == nil {
			node.Params = map[string]string{}
		}
		node.Params[change.Param] = change.Value
		return node, nil
	},
}

// RequestOrApprove records one admin's vote. A fresh request creates the
// pending action; a repeat vote is an idempotent no-op; the vote that reaches
// quorum applies the action atomically with its activation entry, unless a
// time-lock defers it.
func (g *Gate) RequestOrApprove(ctx context.Context, req ActionRequest) (GateResult, error) {
	if err := ctx.Err(); err != nil {
		return GateResult{}, err
	}
	if g == nil || g.store == nil {
		return GateResult{}, apperrors.New(apperrors.CodeUnknown, "quorum gate is not configured")
	}
	if !req.Kind.IsValid() {
		return GateResult{}, apperrors.WithMetadata(apperrors.CodeActionKindUnknown, "unknown action kind", map[string]string{
			"Kind": string(req.Kind),
		})
	}
	req.AdminID = strings.TrimSpace(req.AdminID)
	if req.AdminID == "" {
		return GateResult{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "admin identity is required")
	}

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		result, err := g.requestOrApproveOnce(ctx, req)
		if errors.Is(err, storage.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return result, err
	}
	return GateResult{}, apperrors.Wrap(apperrors.CodeApprovalConflict, "gate lost the node version race repeatedly", lastErr)
}

func (g *Gate) requestOrApproveOnce(ctx context.Context, req ActionRequest) (GateResult, error) {
	node, err := g.store.GetNode(ctx, req.Node)
	if errors.Is(err, storage.ErrNotFound) {
		return GateResult{}, apperrors.WithMetadata(apperrors.CodeNodeUnknown, "unknown protocol node", map[string]string{
			"Node": req.Node,
		})
	}
	if err != nil {
		return GateResult{}, apperrors.Wrap(apperrors.CodeUnknown, "load node", err)
	}

	now := g.now()

	// An armed action whose time-lock has passed activates before the new
	// vote is considered.
	if node.Pending != nil && node.Pending.QuorumReached() && node.Pending.Unlocked(now) {
		node, err = g.activate(ctx, node, now)
		if err != nil {
			return GateResult{}, err
		}
	}

	pending := node.Pending
	fresh := pending == nil || pending.Kind != req.Kind
	if fresh {
		// A vote whose target state already holds is a no-op, never a new
		// pending action. This absorbs the surplus approvals a decided
		// action keeps attracting: a third admin voting after activation,
		// or the loser of a simultaneous deciding vote retrying after its
		// version conflict.
		done, err := satisfied(node, req)
		if err != nil {
			return GateResult{}, err
		}
		if done {
			return GateResult{
				Node:            node,
				AlreadyApproved: true,
				Required:        g.required,
			}, nil
		}
		created, err := NewPendingAction(req.Kind, req.Payload, req.AdminID, req.Justification, g.required, req.UnlockAt, now)
		if err != nil {
			return GateResult{}, err
		}
		pending = &created
	} else {
		if pending.HasApprover(req.AdminID) {
			return GateResult{
				Node:            node,
				AlreadyApproved: true,
				Approvals:       len(pending.Approvals),
				Required:        pending.Required,
			}, nil
		}
		updated := *pending
		updated.Approvals = append(append([]Approval(nil), pending.Approvals...), Approval{AdminID: req.AdminID, At: now})
		pending = &updated
	}
	node.Pending = pending

	if pending.QuorumReached() && pending.Unlocked(now) {
		node, err = g.activate(ctx, node, now)
		if err != nil {
			return GateResult{}, err
		}
		return GateResult{
			Node:      node,
			Approvals: len(pending.Approvals),
			Required:  pending.Required,
			Activated: true,
		}, nil
	}

	label := pending.Kind.ApprovedLabel()
	if fresh {
		label = pending.Kind.RequestedLabel()
	}
	entry, err := gateEntry(req.AdminID, label, node.Name, map[string]any{
		"kind":          string(pending.Kind),
		"approvals":     len(pending.Approvals),
		"required":      pending.Required,
		"justification": pending.Justification,
	})
	if err != nil {
		return GateResult{}, err
	}

	node, _, err = g.store.UpdateNode(ctx, node, node.Version, &entry)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return GateResult{}, err
		}
		return GateResult{}, apperrors.Wrap(apperrors.CodeLedgerAppendFailure, "record vote", err)
	}

	return GateResult{
		Node:      node,
		Approvals: len(pending.Approvals),
		Required:  pending.Required,
		Armed:     pending.QuorumReached(),
	}, nil
}

// satisfied reports whether the requested kind's effect is already in place
// on the node, making a fresh request redundant.
func satisfied(node Node, req ActionRequest) (bool, error) {
	switch req.Kind {
	case KindPause:
		return node.Status == NodePaused, nil
	case KindResume:
		return node.Status == NodeRunning, nil
	case KindParamChange:
		var change ParamChangePayload
		if err := json.Unmarshal(req.Payload, &change); err != nil || strings.TrimSpace(change.Param) == "" {
			return false, apperrors.New(apperrors.CodeActionKindUnknown, "param change payload requires a param name")
		}
		current, ok := node.Params[change.Param]
		return ok && current == change.Value, nil
	}
	return false, nil
}

// activate applies a node's pending action and clears it, appending the
// activation entry in the same transaction. The version CAS inside UpdateNode
// guarantees two racing activations produce exactly one application.
func (g *Gate) activate(ctx context.Context, node Node, now time.Time) (Node, error) {
	pending := node.Pending
	apply, ok := applyFuncs[pending.Kind]
	if !ok {
		return Node{}, apperrors.WithMetadata(apperrors.CodeActionKindUnknown, "unknown action kind", map[string]string{
			"Kind": string(pending.Kind),
		})
	}

	applied, err := apply(node, *pending)
	if err != nil {
		return Node{}, apperrors.Wrap(apperrors.CodeUnknown, "apply pending action", err)
	}
	applied.ChangedAt = now
	applied.ChangedBy = pending.Approvals[len(pending.Approvals)-1].AdminID
	applied.Reason = pending.Justification
	applied.Pending = nil

	entry, err := gateEntry(applied.ChangedBy, pending.Kind.ActivatedLabel(), applied.Name, map[string]any{
		"kind":          string(pending.Kind),
		"approvals":     len(pending.Approvals),
		"required":      pending.Required,
		"justification": pending.Justification,
		"status":        string(applied.Status),
	})
	if err != nil {
		return Node{}, err
	}

	applied, _, err = g.store.UpdateNode(ctx, applied, node.Version, &entry)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return Node{}, err
		}
		return Node{}, apperrors.Wrap(apperrors.CodeLedgerAppendFailure, "record activation", err)
	}

	g.metrics.IncQuorumActivation(string(pending.Kind))
	if g.broadcast != nil {
		g.broadcast.Publish("governance.activated", map[string]any{
			"node":   applied.Name,
			"kind":   string(pending.Kind),
			"status": string(applied.Status),
		})
	}
	return applied, nil
}

// ApplyArmed activates time-locked actions whose unlock time has passed.
// Runs on the background sweep ticker.
func (g *Gate) ApplyArmed(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if g == nil || g.store == nil {
		return 0, apperrors.New(apperrors.CodeUnknown, "quorum gate is not configured")
	}

	nodes, err := g.store.ListNodes(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnknown, "list nodes", err)
	}

	now := g.now()
	activated := 0
	for _, node := range nodes {
		if node.Pending == nil || !node.Pending.QuorumReached() || !node.Pending.Unlocked(now) {
			continue
		}
		if _, err := g.activate(ctx, node, now); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				// A concurrent gate call already applied it.
				continue
			}
			log.Printf("armed activation failed node=%s kind=%s: %v", node.Name, node.Pending.Kind, err)
			continue
		}
		activated++
	}
	return activated, nil
}

// EnsureBootstrapped creates the well-known nodes in RUNNING state when they
// don't exist yet. Safe to call on every startup.
func (g *Gate) EnsureBootstrapped(ctx context.Context, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil || g.store == nil {
		return apperrors.New(apperrors.CodeUnknown, "quorum gate is not configured")
	}

	for _, name := range names {
		if _, err := g.store.EnsureNode(ctx, NewBootstrapNode(name, g.now())); err != nil {
			return apperrors.Wrap(apperrors.CodeUnknown, "bootstrap node "+name, err)
		}
	}
	return nil
}

// Status returns the full registry snapshot.
func (g *Gate) Status(ctx context.Context) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g == nil || g.store == nil {
		return nil, apperrors.New(apperrors.CodeUnknown, "quorum gate is not configured")
	}

	nodes, err := g.store.ListNodes(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list nodes", err)
	}
	return nodes, nil
}

func gateEntry(actor, action, target string, details map[string]any) (ledger.Entry, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return ledger.Entry{}, apperrors.Wrap(apperrors.CodeUnknown, "encode entry details", err)
	}
	return ledger.Entry{
		Actor:       actor,
		EventType:   ledger.EventTypeGovernance,
		Action:      action,
		Target:      target,
		DetailsJSON: payload,
	}, nil
}
