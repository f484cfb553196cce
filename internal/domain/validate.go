package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so errors match the wire fields.
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

// NewDraft trims title and target and validates the draft. The owner is an
// identity and is kept verbatim.
// It returns a *ValidationError for the first offending field.
func NewDraft(owner, title, target string) (Draft, error) {
	d := Draft{
		Owner:  owner,
		Title:  strings.TrimSpace(title),
		Target: strings.TrimSpace(target),
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Validate checks an already-trimmed draft.
func (d Draft) Validate() error {
	err := draftValidator().Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "draft", Reason: err.Error()}
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "must not be empty"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: "must be at most " + fe.Param() + " characters"}
	default:
		return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
}
