package qualifier

import (
	stderrors "errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/models"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func trimRaw(raw models.RawLead) models.RawLead {
	return models.RawLead{
		Email:       strings.TrimSpace(raw.Email),
		FirstName:   strings.TrimSpace(raw.FirstName),
		LastName:    strings.TrimSpace(raw.LastName),
		Company:     strings.TrimSpace(raw.Company),
		JobTitle:    strings.TrimSpace(raw.JobTitle),
		Phone:       strings.TrimSpace(raw.Phone),
		Website:     strings.TrimSpace(raw.Website),
		CompanySize: strings.TrimSpace(raw.CompanySize),
		Industry:    strings.TrimSpace(raw.Industry),
		Notes:       strings.TrimSpace(raw.Notes),
	}
}

// validateRaw reports the first absent required field in declaration order
// before any malformed one.
func (s *Service) validateRaw(raw models.RawLead) error {
	err := s.validate.Struct(raw)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewInternalError(err)
	}

	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return errors.NewMissingFieldError(fe.Field())
		}
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return errors.NewValidationError(fe.Field(), "invalid email format")
	case "url":
		return errors.NewValidationError(fe.Field(), "invalid url")
	default:
		return errors.NewValidationError(fe.Field(), "failed on "+fe.Tag())
	}
}
