package host

import (
	"context"
	"net/mail"
	"strings"

	"esign-sync/internal/common/errors"
)

// AddressDirectory resolves identity references written as "email" or
// "Name <email>". A bare email yields its local part as the name.
type AddressDirectory struct{}

func (AddressDirectory) Lookup(_ context.Context, identityRef string) (string, string, error) {
	ref := strings.TrimSpace(identityRef)
	if ref == "" {
		return "", "", errors.ValidationError("identity reference is empty")
	}

	addr, err := mail.ParseAddress(ref)
	if err != nil {
		return "", "", errors.NotFoundError("user " + ref)
	}

	name := strings.TrimSpace(addr.Name)
	if name == "" {
		name = addr.Address
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
	}
	return addr.Address, name, nil
}
