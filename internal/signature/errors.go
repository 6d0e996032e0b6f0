package signature

import "esign-sync/internal/common/errors"

// Codes carried on the authentication errors returned by Evaluate.
const (
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidSecret    = "invalid_secret"
	CodeAuthRequired     = "auth_required"
)

func verificationError(code, message string) *errors.AppError {
	return errors.AuthError(message).WithCode(code)
}
