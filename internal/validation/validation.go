// Package validation configures the go-playground validator shared by the
// experiment and result packages.
//
// Field names in error messages are the JSON names clients send, and the
// "decimals" tag bounds the number of fractional digits of a float.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// New returns a validator that reports JSON field names and understands the
// decimals=N tag.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("decimals", validateDecimals) //nolint:errcheck // tag name is a constant
	return v
}

// Describe turns a validator error into a single client-facing sentence.
// Errors that did not come from the validator are returned as-is.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describeField(fe))
	}
	return strings.Join(parts, "; ")
}

func describeField(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "decimals":
		return fmt.Sprintf("%s allows at most %s decimal places", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is not valid (%s)", field, fe.Tag())
	}
}

// fieldPath drops the root struct name: "CreateInput.computeSettings.clusterState"
// becomes "computeSettings.clusterState".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// validateDecimals reports whether a float has no more fractional digits
// than the tag parameter allows.
func validateDecimals(fl validator.FieldLevel) bool {
	places, err := strconv.Atoi(fl.Param())
	if err != nil || places < 0 {
		return false
	}

	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return false
	}

	scaled := field.Float() * math.Pow10(places)
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
