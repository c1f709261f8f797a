// Package errors provides structured error handling for the control plane.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Bet validation errors
	CodeBetStakeInvalid   Code = "BET_STAKE_INVALID"
	CodeBetVariantUnknown Code = "BET_VARIANT_UNKNOWN"
	CodeBetPickOutOfRange Code = "BET_PICK_OUT_OF_RANGE"
	CodeBetPlayerEmpty    Code = "BET_PLAYER_EMPTY"

	// Commitment errors
	CodeInvalidNonce      Code = "COMMITMENT_INVALID_NONCE"
	CodeStaleCommitment   Code = "COMMITMENT_STALE"
	CodeParameterMismatch Code = "COMMITMENT_PARAMETER_MISMATCH"

	// Governance errors
	CodeNodeUnknown        Code = "PROTOCOL_NODE_UNKNOWN"
	CodeActionKindUnknown  Code = "QUORUM_ACTION_KIND_UNKNOWN"
	CodeDuplicateApproval  Code = "QUORUM_DUPLICATE_APPROVAL"
	CodeTimeLocked         Code = "QUORUM_TIME_LOCKED"
	CodeApprovalConflict   Code = "QUORUM_APPROVAL_CONFLICT"
	CodeJustificationEmpty Code = "QUORUM_JUSTIFICATION_EMPTY"

	// Ledger errors
	CodeLedgerAppendFailure     Code = "LEDGER_APPEND_FAILURE"
	CodeChainIntegrityViolation Code = "LEDGER_CHAIN_INTEGRITY_VIOLATION"
	CodeLedgerRangeInvalid      Code = "LEDGER_RANGE_INVALID"

	// Admin grant errors
	CodeAdminGrantInvalid  Code = "ADMIN_GRANT_INVALID"
	CodeAdminGrantExpired  Code = "ADMIN_GRANT_EXPIRED"
	CodeAdminGrantMismatch Code = "ADMIN_GRANT_MISMATCH"
	CodeAdminRoleForbidden Code = "ADMIN_ROLE_FORBIDDEN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeBetStakeInvalid,
		CodeBetVariantUnknown,
		CodeBetPickOutOfRange,
		CodeBetPlayerEmpty,
		CodeActionKindUnknown,
		CodeJustificationEmpty,
		CodeLedgerRangeInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvalidNonce,
		CodeStaleCommitment,
		CodeParameterMismatch,
		CodeTimeLocked,
		CodeApprovalConflict:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeNodeUnknown:
		return codes.NotFound

	// Unauthenticated - grant verification failures
	case CodeAdminGrantInvalid,
		CodeAdminGrantExpired,
		CodeAdminGrantMismatch:
		return codes.Unauthenticated

	// PermissionDenied - authenticated but not allowed
	case CodeAdminRoleForbidden:
		return codes.PermissionDenied

	// AlreadyExists - idempotent replays surfaced as conflicts
	case CodeDuplicateApproval:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
