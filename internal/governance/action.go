// Package governance implements quorum-gated operational control of named
// protocol nodes.
package governance

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
)

// Kind identifies a gated action type. All kinds share one approval shape;
// application is parametrized per kind.
type Kind string

const (
	// KindPause flips a node from RUNNING to PAUSED.
	KindPause Kind = "PAUSE"
	// KindResume flips a node from PAUSED to RUNNING.
	KindResume Kind = "RESUME"
	// KindParamChange updates a node's operational parameters.
	KindParamChange Kind = "PARAM_CHANGE"
)

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindPause, KindResume, KindParamChange:
		return true
	}
	return false
}

// RequestedLabel is the ledger action label for a fresh pending action.
func (k Kind) RequestedLabel() string { return string(k) + "_REQUESTED" }

// ApprovedLabel is the ledger action label for a recorded approval.
func (k Kind) ApprovedLabel() string { return string(k) + "_APPROVED" }

// ActivatedLabel is the ledger action label for an applied action.
func (k Kind) ActivatedLabel() string { return string(k) + "_ACTIVATED" }

// ParamChangePayload is the tagged payload for KindParamChange actions.
type ParamChangePayload struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

// Approval records one admin's vote on a pending action.
type Approval struct {
	AdminID string    `json:"admin_id"`
	At      time.Time `json:"at"`
}

// PendingAction is a quorum action awaiting approvals on a node. It is the
// tagged variant shared by all kinds.
type PendingAction struct {
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RequestedBy   string          `json:"requested_by"`
	Justification string          `json:"justification"`
	Required      int             `json:"required"`
	UnlockAt      *time.Time      `json:"unlock_at,omitempty"`
	Approvals     []Approval      `json:"approvals"`
}

// HasApprover reports whether adminID already voted.
func (p PendingAction) HasApprover(adminID string) bool {
	for _, approval := range p.Approvals {
		if approval.AdminID == adminID {
			return true
		}
	}
	return false
}

// QuorumReached reports whether distinct approvals meet the threshold.
func (p PendingAction) QuorumReached() bool {
	return len(p.Approvals) >= p.Required && p.Required > 0
}

// Unlocked reports whether the optional time-lock has passed at now.
// A time-lock defers activation; it never cancels it.
func (p PendingAction) Unlocked(now time.Time) bool {
	return p.UnlockAt == nil || !now.Before(*p.UnlockAt)
}

// NewPendingAction starts a fresh pending action with the requester as sole
// approver.
func NewPendingAction(kind Kind, payload json.RawMessage, requestedBy, justification string, required int, unlockAt *time.Time, now time.Time) (PendingAction, error) {
	if !kind.IsValid() {
		return PendingAction{}, apperrors.WithMetadata(apperrors.CodeActionKindUnknown, "unknown action kind", map[string]string{
			"Kind": string(kind),
		})
	}
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return PendingAction{}, apperrors.New(apperrors.CodeAdminGrantInvalid, "requester identity is required")
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return PendingAction{}, apperrors.New(apperrors.CodeJustificationEmpty, "justification is required")
	}
	if required <= 0 {
		required = DefaultRequiredApprovals
	}
	if kind == KindParamChange {
		var change ParamChangePayload
		if err := json.Unmarshal(payload, &change); err != nil || strings.TrimSpace(change.Param) == "" {
			return PendingAction{}, apperrors.New(apperrors.CodeActionKindUnknown, "param change payload requires a param name")
		}
	}
	return PendingAction{
		Kind:          kind,
		Payload:       payload,
		RequestedBy:   requestedBy,
		Justification: justification,
		Required:      required,
		UnlockAt:      unlockAt,
		Approvals:     []Approval{{AdminID: requestedBy, At: now}},
	}, nil
}

// DefaultRequiredApprovals is the deployment default quorum threshold.
const DefaultRequiredApprovals = 2
