package road

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field names in its errors are the
// json names (start_lat, road_type, ...).
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateSegments checks every segment and returns the first problem as a
// *MissingFieldError or *InvalidFieldError.
func ValidateSegments(segments []Segment) error {
	for i := range segments {
		if err := Validator().Struct(segments[i]); err != nil {
			return fieldError(err, i)
		}
	}
	return nil
}

// ValidateTrajectory checks every point of a trajectory.
func ValidateTrajectory(points []TrajectoryPoint) error {
	for i := range points {
		if err := Validator().Struct(points[i]); err != nil {
			return fieldError(err, i)
		}
	}
	return nil
}

func fieldError(err error, row int) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return &MissingFieldError{Field: fe.Field(), Row: row}
	}
	return &InvalidFieldError{
		Field:  fe.Field(),
		Row:    row,
		Value:  fmt.Sprint(fe.Value()),
		Reason: fmt.Sprintf("not a valid %s", fe.Tag()),
	}
}
