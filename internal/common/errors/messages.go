package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Messages shown to end users in place of raw transport errors.
const (
	MsgReconnect      = "token expired or unauthorized, please reconnect"
	MsgNetwork        = "unable to reach the signing service (DNS/network)"
	MsgEnvelopeAbsent = "envelope not found"
)

// UserMessage translates err into one of a small set of user-facing
// categories. fallback is returned when no category applies.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	if HTTPStatus(err) == http.StatusUnauthorized {
		return MsgReconnect
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return MsgNetwork
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "invalid_token"), strings.Contains(text, "unauthorized"):
		return MsgReconnect
	case strings.Contains(text, "no such host"), strings.Contains(text, "unknownhost"):
		return MsgNetwork
	case strings.Contains(text, "envelope") && strings.Contains(text, "not found"):
		return MsgEnvelopeAbsent
	}

	if appErr, ok := As(err); ok {
		switch appErr.Type {
		case ErrTypeRemoteService:
			if appErr.Code != "" {
				return fmt.Sprintf("DocuSign error (%s): %s", appErr.Code, appErr.Message)
			}
			return fallback
		case ErrTypeConnection:
			return MsgNetwork
		case ErrTypeValidation, ErrTypeAuth, ErrTypeNotFound:
			return appErr.Message
		}
	}

	return fallback
}

// StatusCode maps an error onto the HTTP status a handler should answer with.
func StatusCode(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeAuth:
		if appErr.Code == CodeForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeRemoteService, ErrTypeConnection:
		return http.StatusBadGateway
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
