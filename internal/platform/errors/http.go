package errors

import "net/http"

// HTTPStatus maps a domain error to an HTTP status code. Unknown errors map
// to 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCode(err) {
	case CodeBetStakeInvalid, CodeBetVariantUnknown, CodeBetPickOutOfRange, CodeBetPlayerEmpty,
		CodeInvalidNonce, CodeParameterMismatch,
		CodeActionKindUnknown, CodeJustificationEmpty, CodeLedgerRangeInvalid:
		return http.StatusBadRequest
	case CodeStaleCommitment:
		return http.StatusConflict
	case CodeDuplicateApproval, CodeTimeLocked:
		return http.StatusConflict
	case CodeApprovalConflict:
		return http.StatusConflict
	case CodeAdminGrantInvalid, CodeAdminGrantExpired, CodeAdminGrantMismatch:
		return http.StatusUnauthorized
	case CodeAdminRoleForbidden:
		return http.StatusForbidden
	case CodeNodeUnknown, CodeNotFound:
		return http.StatusNotFound
	case CodeLedgerAppendFailure, CodeChainIntegrityViolation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
