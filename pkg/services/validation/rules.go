package validation

import "fmt"

// The business-rule layer runs on top of structural validation. Structural
// failure short-circuits; a structurally valid payload that breaks a semantic
// rule comes back with only the rule errors.

func ValidateVehicleWithRules(input any) Result[Vehicle] {
	res := ValidateVehicle(input)
	if !res.Success {
		return res
	}

	var errs []FieldError
	if res.Data.Latitude == 0 && res.Data.Longitude == 0 {
		errs = append(errs, FieldError{
			Field:   "callat",
			Message: "coordinates are exactly (0,0), which indicates a missing GPS fix",
			Code:    CodeInvalidCoordinates,
		})
	}
	if res.Data.Speed < 0 || res.Data.Speed > MaxVehicleSpeedKmh {
		errs = append(errs, FieldError{
			Field:         "speed",
			Message:       fmt.Sprintf("speed must be within [0, %d] km/h", MaxVehicleSpeedKmh),
			Code:          CodeInvalidSpeed,
			ReceivedValue: res.Data.Speed,
		})
	}
	if len(errs) > 0 {
		return Result[Vehicle]{Errors: errs, Raw: input}
	}
	return res
}

func ValidateUserWithRules(input any) Result[User] {
	res := ValidateUser(input)
	if !res.Success {
		return res
	}

	if len(res.Data.Username) < MinUsernameLength {
		return Result[User]{
			Errors: []FieldError{{
				Field:         "username",
				Message:       fmt.Sprintf("username must be at least %d characters", MinUsernameLength),
				Code:          CodeUsernameTooShort,
				ReceivedValue: res.Data.Username,
			}},
			Raw: input,
		}
	}
	return res
}

func ValidatePositionWithRules(input any) Result[Position] {
	res := ValidatePosition(input)
	if !res.Success {
		return res
	}

	var errs []FieldError
	if res.Data.Latitude > 90 || res.Data.Latitude < -90 {
		errs = append(errs, FieldError{
			Field:         "callat",
			Message:       "latitude out of range",
			Code:          CodeInvalidGPS,
			ReceivedValue: res.Data.Latitude,
		})
	}
	if res.Data.Longitude > 180 || res.Data.Longitude < -180 {
		errs = append(errs, FieldError{
			Field:         "callon",
			Message:       "longitude out of range",
			Code:          CodeInvalidGPS,
			ReceivedValue: res.Data.Longitude,
		})
	}
	if len(errs) > 0 {
		return Result[Position]{Errors: errs, Raw: input}
	}
	return res
}

// InvalidVehicle pairs a rejected input with the errors that rejected it.
type InvalidVehicle struct {
	Raw    any
	Errors []FieldError
}

// PartitionVehicles validates every element independently, never
// short-circuiting, and splits the batch into valid and invalid sets.
func PartitionVehicles(inputs []any) ([]Vehicle, []InvalidVehicle) {
	valid := make([]Vehicle, 0, len(inputs))
	var invalid []InvalidVehicle
	for _, in := range inputs {
		res := ValidateVehicleWithRules(in)
		if res.Success {
			valid = append(valid, *res.Data)
			continue
		}
		invalid = append(invalid, InvalidVehicle{Raw: in, Errors: res.Errors})
	}
	return valid, invalid
}
