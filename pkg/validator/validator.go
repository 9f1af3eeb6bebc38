package validator

import (
	"fmt"

	"opd-token-allocation/internal/domain/entity"

	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
}

// customValidations are the tags registered on top of the validator built-ins.
var customValidations = map[string]validator.Func{
	// "slot" accepts hour ranges like 09-10
	"slot": func(fl validator.FieldLevel) bool {
		_, err := entity.ParseSlot(fl.Field().String())
		return err == nil
	},
}

// NewValidator panics when a custom tag cannot be registered, since every
// struct using that tag would otherwise skip the check.
func NewValidator() *CustomValidator {
	v := validator.New()
	if err := registerValidations(v, customValidations); err != nil {
		panic(err)
	}
	return &CustomValidator{
		validator: v,
	}
}

func registerValidations(v *validator.Validate, validations map[string]validator.Func) error {
	for tag, fn := range validations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q validation: %w", tag, err)
		}
	}
	return nil
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errors[field] = field + " is required"
			case "email":
				errors[field] = field + " must be a valid email address"
			case "min":
				errors[field] = field + " must have at least " + e.Param() + " entries or characters"
			case "max":
				errors[field] = field + " must be at most " + e.Param() + " characters"
			case "gte":
				errors[field] = field + " must be greater than or equal to " + e.Param()
			case "lte":
				errors[field] = field + " must be less than or equal to " + e.Param()
			case "oneof":
				errors[field] = field + " must be one of " + e.Param()
			case "datetime":
				errors[field] = field + " must be formatted as " + e.Param()
			case "slot":
				errors[field] = field + " must be an hour range like 09-10"
			default:
				errors[field] = field + " is invalid"
			}
		}
	}

	return errors
}
