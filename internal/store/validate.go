package store

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/secondhand-store/internal/database"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs struct tag validation and reports the first failing
// field as an invalid argument.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return database.InvalidArgumentf("%v", err)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return database.InvalidArgumentf("%s is required", fe.Field())
	case "max":
		return database.InvalidArgumentf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return database.InvalidArgumentf("%s must be a valid email address", fe.Field())
	default:
		return database.InvalidArgumentf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}
