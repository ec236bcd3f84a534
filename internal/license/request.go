package license

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// XXXXX-XXXXX-XXXXX-XXXXX-XXXXX, uppercase alphanumeric only.
	licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}$`)
	// Opaque client device identifier: 10-1000 chars, no whitespace.
	deviceIdentifierPattern = regexp.MustCompile(`^\S{10,1000}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("licensekey", func(fl validator.FieldLevel) bool {
		return licenseKeyPattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("deviceid", func(fl validator.FieldLevel) bool {
		return deviceIdentifierPattern.MatchString(fl.Field().String())
	})
	return v
}

// HeartbeatRequest is the verification payload. The heartbeat endpoint
// receives it as a JSON body, the classloader endpoint as query parameters.
type HeartbeatRequest struct {
	LicenseKey       string `json:"licenseKey" query:"licenseKey" validate:"required,licensekey"`
	DeviceIdentifier string `json:"deviceIdentifier" query:"deviceIdentifier" validate:"required,deviceid"`
	CustomerID       string `json:"customerId" query:"customerId" validate:"omitempty,uuid"`
	ProductID        string `json:"productId" query:"productId" validate:"omitempty,uuid"`
	Challenge        string `json:"challenge" query:"challenge" validate:"omitempty,max=1000"`
	Version          string `json:"version" query:"version" validate:"omitempty,max=255"`
	Branch           string `json:"branch" query:"branch" validate:"omitempty,max=255"`
}

// Validate checks the payload shape. Anything failing here is a
// BAD_REQUEST; the client must fix the request, not retry it.
func (r *HeartbeatRequest) Validate() error {
	return validate.Struct(r)
}
