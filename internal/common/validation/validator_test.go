package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-sync/internal/common/errors"
)

type position struct {
	Page *int `json:"page" validate:"omitempty,min=1,max=10000"`
}

type signer struct {
	Email     string     `json:"email" validate:"omitempty,email"`
	Positions []position `json:"positions" validate:"max=2,dive"`
}

type request struct {
	HostKey string   `json:"hostKey" validate:"required,host_key"`
	Mode    string   `json:"mode" validate:"omitempty,oneof=individual combined"`
	Signers []signer `json:"signers" validate:"required,min=1,dive"`
}

func intPtr(v int) *int { return &v }

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     request
		wantErr string
	}{
		{
			name: "valid",
			req:  request{HostKey: "ABC-1", Signers: []signer{{Email: "a@x.com"}}},
		},
		{
			name:    "missing host key",
			req:     request{Signers: []signer{{}}},
			wantErr: "field 'hostKey' is required",
		},
		{
			name:    "malformed host key",
			req:     request{HostKey: "abc", Signers: []signer{{}}},
			wantErr: "host key like ABC-123",
		},
		{
			name:    "nested field names its index",
			req:     request{HostKey: "ABC-1", Signers: []signer{{}, {Positions: []position{{Page: intPtr(0)}}}}},
			wantErr: "signers[1].positions[0].page",
		},
		{
			name:    "bad mode",
			req:     request{HostKey: "ABC-1", Mode: "zip", Signers: []signer{{}}},
			wantErr: "must be one of: individual combined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFieldErrors_MultipleFailures(t *testing.T) {
	v := NewCentralizedValidator()
	fieldErrors := v.FieldErrors(request{HostKey: "bad", Signers: nil})

	require.Len(t, fieldErrors, 2)
	assert.Equal(t, "hostKey", fieldErrors[0].Field)
	assert.Equal(t, "signers", fieldErrors[1].Field)
	assert.Nil(t, v.FieldErrors(request{HostKey: "ABC-1", Signers: []signer{{}}}))
}

func TestValidCronSchedule(t *testing.T) {
	assert.True(t, ValidCronSchedule("@every 5m"))
	assert.True(t, ValidCronSchedule("*/10 * * * *"))
	assert.False(t, ValidCronSchedule("every five minutes"))
	assert.NoError(t, ValidateVar("@hourly", "cron_schedule"))
	assert.Error(t, ValidateVar("nope", "cron_schedule"))
}

func TestIsHostKey(t *testing.T) {
	assert.True(t, IsHostKey("PROJ-42"))
	assert.True(t, IsHostKey("A1-7"))
	assert.False(t, IsHostKey("proj-42"))
	assert.False(t, IsHostKey("PROJ-"))
}
