package validation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Error codes attached to FieldError entries. Structural failures carry the
// failed validator tag as their code; the codes below are produced by the
// decode step and the business-rule layer.
const (
	CodeMalformedPayload    = "malformed_payload"
	CodeValidationException = "validation_exception"
	CodeInvalidCoordinates  = "invalid_coordinates"
	CodeInvalidSpeed        = "invalid_speed"
	CodeUsernameTooShort    = "username_too_short"
	CodeInvalidGPS          = "invalid_gps"
	CodeMissingToken        = "missing_token"
)

const (
	MaxVehicleSpeedKmh = 300
	MinUsernameLength  = 3
)

type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	Code          string `json:"code"`
	ReceivedValue any    `json:"received_value,omitempty"`
}

// Result is the outcome of validating one untyped payload. On success Data
// holds the coerced value and Raw is nil; on failure Data is nil and Raw
// echoes the original input for diagnostics.
type Result[T any] struct {
	Success bool
	Data    *T
	Errors  []FieldError
	Raw     any
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// run decodes an arbitrary input into T and applies the struct constraints.
// It never panics: an exception inside validation is recovered and reported
// as a single validation_exception error.
func run[T any](input any) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{
				Errors: []FieldError{{Field: "", Message: fmt.Sprintf("validation panicked: %v", r), Code: CodeValidationException}},
				Raw:    input,
			}
		}
	}()

	raw, err := json.Marshal(input)
	if err != nil {
		return Result[T]{
			Errors: []FieldError{{Field: "", Message: err.Error(), Code: CodeMalformedPayload, ReceivedValue: input}},
			Raw:    input,
		}
	}

	data := new(T)
	if err := json.Unmarshal(raw, data); err != nil {
		fe := FieldError{Field: "", Message: err.Error(), Code: CodeMalformedPayload}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			fe.Field = typeErr.Field
			fe.ReceivedValue = typeErr.Value
		}
		return Result[T]{Errors: []FieldError{fe}, Raw: input}
	}

	if err := structValidator.Struct(data); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Result[T]{
				Errors: []FieldError{{Field: "", Message: err.Error(), Code: CodeValidationException}},
				Raw:    input,
			}
		}
		fes := make([]FieldError, 0, len(verrs))
		for _, ve := range verrs {
			fes = append(fes, FieldError{
				Field:         ve.Field(),
				Message:       fmt.Sprintf("failed %q constraint", ve.Tag()),
				Code:          ve.Tag(),
				ReceivedValue: ve.Value(),
			})
		}
		return Result[T]{Errors: fes, Raw: input}
	}

	return Result[T]{Success: true, Data: data}
}

func ValidateVehicle(input any) Result[Vehicle] { return run[Vehicle](input) }

func ValidateUser(input any) Result[User] { return run[User](input) }

func ValidatePosition(input any) Result[Position] { return run[Position](input) }

func ValidateDeviceType(input any) Result[DeviceType] { return run[DeviceType](input) }

func ValidateDeviceListResponse(input any) Result[DeviceListResponse] {
	return run[DeviceListResponse](input)
}

// ValidateAuthResponse additionally requires a token on a successful login
// status, which the wire schema alone cannot express.
func ValidateAuthResponse(input any) Result[AuthResponse] {
	res := run[AuthResponse](input)
	if !res.Success {
		return res
	}
	if res.Data.Status == 0 && res.Data.Token == "" {
		return Result[AuthResponse]{
			Errors: []FieldError{{Field: "token", Message: "successful login carries no token", Code: CodeMissingToken}},
			Raw:    input,
		}
	}
	return res
}
