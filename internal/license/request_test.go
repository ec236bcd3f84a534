package license

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatRequestValidate(t *testing.T) {
	valid := HeartbeatRequest{
		LicenseKey:       "ABCDE-FGHIJ-KLMNO-PQRST-UVWXY",
		DeviceIdentifier: "machine-0001",
	}

	tests := []struct {
		name   string
		mutate func(*HeartbeatRequest)
		wantOK bool
	}{
		{"minimal valid payload", func(*HeartbeatRequest) {}, true},
		{"full valid payload", func(r *HeartbeatRequest) {
			r.CustomerID = "0b6bfbcd-1d6a-4f6e-9a06-6a185b4f0bc7"
			r.ProductID = "6a3c1b60-9d5f-4f8e-b9ab-1f6a6c2d3e4f"
			r.Challenge = "nonce-12345"
			r.Version = "1.4.2"
			r.Branch = "stable"
		}, true},
		{"missing license key", func(r *HeartbeatRequest) { r.LicenseKey = "" }, false},
		{"lowercase license key", func(r *HeartbeatRequest) {
			r.LicenseKey = "abcde-fghij-klmno-pqrst-uvwxy"
		}, false},
		{"wrong block count", func(r *HeartbeatRequest) {
			r.LicenseKey = "ABCDE-FGHIJ-KLMNO-PQRST"
		}, false},
		{"wrong block size", func(r *HeartbeatRequest) {
			r.LicenseKey = "ABCD-FGHIJ-KLMNO-PQRST-UVWXY"
		}, false},
		{"missing device identifier", func(r *HeartbeatRequest) { r.DeviceIdentifier = "" }, false},
		{"device identifier too short", func(r *HeartbeatRequest) { r.DeviceIdentifier = "short" }, false},
		{"device identifier with whitespace", func(r *HeartbeatRequest) {
			r.DeviceIdentifier = "machine 0001 here"
		}, false},
		{"device identifier too long", func(r *HeartbeatRequest) {
			r.DeviceIdentifier = strings.Repeat("x", 1001)
		}, false},
		{"device identifier at upper bound", func(r *HeartbeatRequest) {
			r.DeviceIdentifier = strings.Repeat("x", 1000)
		}, true},
		{"device identifier at lower bound", func(r *HeartbeatRequest) {
			r.DeviceIdentifier = strings.Repeat("x", 10)
		}, true},
		{"malformed customer uuid", func(r *HeartbeatRequest) { r.CustomerID = "not-a-uuid" }, false},
		{"malformed product uuid", func(r *HeartbeatRequest) { r.ProductID = "not-a-uuid" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
