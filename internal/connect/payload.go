package connect

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxBodyBytes bounds a push notification body after decompression.
const MaxBodyBytes = 8 << 20

// MaxStoredPayload is the number of characters of a payload kept on its
// event row.
const MaxStoredPayload = 8000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadBody reads the request body, inflating it when the sender declared
// gzip content encoding.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	var reader io.Reader = r.Body
	if strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, MaxBodyBytes))
}

// StripLeadingJunk drops a UTF-8 BOM and any whitespace or control bytes
// before the first '<'. Anything else before the first '<' leaves the
// payload untouched apart from the BOM.
func StripLeadingJunk(raw []byte) []byte {
	out := bytes.TrimPrefix(raw, utf8BOM)
	lt := bytes.IndexByte(out, '<')
	if lt <= 0 {
		return out
	}
	for _, b := range out[:lt] {
		if b >= 0x20 && b != ' ' {
			return out
		}
	}
	return out[lt:]
}

// HasDoctype reports whether the payload declares a DTD. Such payloads are
// never parsed.
func HasDoctype(data []byte) bool {
	return bytes.Contains(bytes.ToUpper(data), []byte("<!DOCTYPE"))
}

// PayloadHash is the idempotency key for a push notification: lowercase hex
// SHA-256 of the body as received.
func PayloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// TruncatePayload returns at most MaxStoredPayload characters of raw.
func TruncatePayload(raw []byte) string {
	text := string(raw)
	if utf8.RuneCountInString(text) <= MaxStoredPayload {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxStoredPayload])
}
