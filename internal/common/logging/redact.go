package logging

import (
	"strings"
)

// redactedKeys are field names whose values never reach the log output.
var redactedKeys = map[string]bool{
	"access_token":   true,
	"refresh_token":  true,
	"token":          true,
	"authorization":  true,
	"secret":         true,
	"client_secret":  true,
	"code":           true,
	"code_verifier":  true,
	"verifier":       true,
	"hmac_key":       true,
	"password":       true,
	"master_key":     true,
	"signature":      true,
}

const redactedValue = "[REDACTED]"

// Secret logs that a value was present without logging the value.
func Secret(key, value string) Field {
	if value == "" {
		return Field{Key: key, Value: ""}
	}
	return Field{Key: key, Value: redactedValue}
}

// IsRedactedKey reports whether values under key are masked.
func IsRedactedKey(key string) bool {
	return redactedKeys[strings.ToLower(strings.TrimSpace(key))]
}

func redact(field Field) Field {
	if IsRedactedKey(field.Key) {
		if s, ok := field.Value.(string); ok && s == "" {
			return field
		}
		return Field{Key: field.Key, Value: redactedValue}
	}
	return field
}
