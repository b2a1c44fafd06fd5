// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// createProcessRequest is the decoded body of POST /create-process.
type createProcessRequest struct {
	App         string            `json:"app" validate:"required,slug_charset"`
	Node        string            `json:"node" validate:"required,slug_charset=dot"`
	ProcessType string            `json:"process_type" validate:"required"`
	SourceURL   string            `json:"source_url" validate:"required,url,http_url"`
	Env         map[string]string `json:"env"`
}

//nolint:gochecknoinits // registers custom validator tags once at package load
func init() {
	v := getValidator()
	_ = v.RegisterValidation("slug_charset", validateSlugCharset)
	_ = v.RegisterValidation("http_url", validateHTTPURL)
}

// validateSlugCharset accepts [A-Za-z0-9_-]+; the "dot" parameter also
// allows '.'.
func validateSlugCharset(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	allowDot := fl.Param() == "dot"
	for _, r := range s {
		if !(r == '_' || r == '-' || (r == '.' && allowDot) ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// validateCreateRequest runs struct validation and reduces the result to a
// single human-readable detail string for the 400 error document.
func validateCreateRequest(req *createProcessRequest) string {
	if err := getValidator().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if asValidationErrors(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
			}
			return strings.Join(msgs, "; ")
		}
		return err.Error()
	}
	return ""
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}
