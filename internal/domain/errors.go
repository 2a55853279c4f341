package domain

import "errors"

// ErrorCode is a canonical OAuth error token appended to redirect targets.
type ErrorCode string

const (
	ErrCodeInvalidClient            ErrorCode = "invalid_client"
	ErrCodeInvalidRedirectURL       ErrorCode = "invalid_redirect_url"
	ErrCodeConflictResponseType     ErrorCode = "conflict_response_type"
	ErrCodeLoginRequired            ErrorCode = "login_required"
	ErrCodeConsentRequired          ErrorCode = "consent_required"
	ErrCodeAccountSelectionRequired ErrorCode = "account_selection_required"
	ErrCodeAccessDenied             ErrorCode = "access_denied"
)

// AuthError is a client-caused validation failure recovered into Flow.Error
// and rendered as a redirect query parameter. It is JSON-serializable because
// it persists inside the flow record.
type AuthError struct {
	Code        ErrorCode `json:"code"`
	Description string    `json:"description,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

// NewAuthError builds a flow-recoverable error with a canonical code.
func NewAuthError(code ErrorCode, description string) *AuthError {
	return &AuthError{Code: code, Description: description}
}

var (
	// ErrFlowNotFound signals a missing or expired flow; the caller must
	// restart at /authorize.
	ErrFlowNotFound = errors.New("flow: not found or expired")
	// ErrFlowExpired signals a persist attempt on an already-expired flow.
	ErrFlowExpired = errors.New("flow: expired")
	// ErrStageRegression signals an advance that would move a stage backwards.
	ErrStageRegression = errors.New("flow: stage cannot regress")
	// ErrChallengeNotFound signals a login without a prior pre-login exchange.
	ErrChallengeNotFound = errors.New("srp: pre login first")
	// ErrInvalidIdentifier signals an unknown login identifier.
	ErrInvalidIdentifier = errors.New("srp: invalid identifier")
	// ErrVerificationFailed is the generic proof rejection. It deliberately
	// carries no detail about which check failed.
	ErrVerificationFailed = errors.New("srp: verification failed")
	// ErrUnknownConnector signals an identity connector kind this server
	// was not built with.
	ErrUnknownConnector = errors.New("connector: unknown kind")
)
