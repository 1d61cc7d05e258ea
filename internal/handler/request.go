package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// DateLayout is the DD/MM/YYYY layout suppliers expect.
const DateLayout = "02/01/2006"

// SearchRequest is the body of both search endpoints.
type SearchRequest struct {
	SkiSite   int    `json:"ski_site" validate:"required,min=1"`
	FromDate  string `json:"from_date" validate:"required,ddmmyyyy"`
	ToDate    string `json:"to_date" validate:"required,ddmmyyyy"`
	GroupSize int    `json:"group_size" validate:"required,min=1,max=10"`
}

// Query converts the request to a logical search query.
func (r SearchRequest) Query() types.LogicalQuery {
	return types.LogicalQuery{
		SkiSite:   r.SkiSite,
		FromDate:  r.FromDate,
		ToDate:    r.ToDate,
		GroupSize: r.GroupSize,
	}
}

// RequestError lists the problems found in a search request.
type RequestError struct {
	Messages []string
}

func (e *RequestError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// NewValidator returns a validator that knows the search request rules and
// reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ddmmyyyy", validateDate)
	v.RegisterStructValidation(validateDateRange, SearchRequest{})
	return v
}

// validateDate accepts real calendar dates in DD/MM/YYYY form.
func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

func validateDateRange(sl validator.StructLevel) {
	req := sl.Current().Interface().(SearchRequest)
	from, err := time.Parse(DateLayout, req.FromDate)
	if err != nil {
		return
	}
	to, err := time.Parse(DateLayout, req.ToDate)
	if err != nil {
		return
	}
	if to.Before(from) {
		sl.ReportError(req.ToDate, "to_date", "ToDate", "notbefore", "from_date")
	}
}

// DecodeSearchRequest reads and validates a search request body.
func DecodeSearchRequest(r *http.Request, v *validator.Validate) (SearchRequest, error) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &RequestError{Messages: []string{"request body must be a valid JSON object"}}
	}

	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return req, fmt.Errorf("validate request: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return req, &RequestError{Messages: msgs}
	}
	return req, nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " should not be empty"
	case "min":
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must not be greater than %s", field, fe.Param())
	case "ddmmyyyy":
		return field + " must be in format DD/MM/YYYY"
	case "notbefore":
		return fmt.Sprintf("%s must not be before %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
