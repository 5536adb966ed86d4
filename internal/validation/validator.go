package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// FieldError reports the first rule a field failed.
type FieldError struct {
	Field string
	Rule  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: failed rule %q", e.Field, e.Rule)
}

// Validator validates form structs whose fields are *string. A nil pointer
// means the field was absent from the submission.
//
// On top of the go-playground rules (required, omitempty) it registers:
//
//	maxbytes=N        at most N bytes
//	minlen_or_empty=N empty, or at least N bytes
//	uint_or_empty     empty, or a base-10 unsigned 32-bit integer
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	v := validator.New()
	mustRegister(v, "maxbytes", maxBytes)
	mustRegister(v, "minlen_or_empty", minLenOrEmpty)
	mustRegister(v, "uint_or_empty", uintOrEmpty)
	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// Validate checks every tagged field in declaration order and returns the
// first *FieldError.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validate expects a struct: %w", err)
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return &FieldError{Field: fe.StructField(), Rule: rule}
}

func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= n
}

func minLenOrEmpty(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	value := fl.Field().String()
	return value == "" || len(value) >= n
}

func uintOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := strconv.ParseUint(value, 10, 32)
	return err == nil
}

// BindForm fills the *string fields of dst from values using their `form`
// tag. Fields whose key is absent stay nil.
func BindForm(values url.Values, dst interface{}) error {
	val := reflect.ValueOf(dst)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return errors.New("bind expects a pointer to a struct")
	}
	val = val.Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		key := typ.Field(i).Tag.Get("form")
		if key == "" {
			continue
		}
		field := val.Field(i)
		if field.Type() != reflect.TypeOf((*string)(nil)) {
			return fmt.Errorf("%s: form fields must be *string", typ.Field(i).Name)
		}
		vs, ok := values[key]
		if !ok || len(vs) == 0 {
			continue
		}
		s := vs[0]
		field.Set(reflect.ValueOf(&s))
	}
	return nil
}
