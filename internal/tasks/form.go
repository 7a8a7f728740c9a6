package tasks

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field name to a user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// taskForm is the raw add-task submission.
type taskForm struct {
	Title       string `form:"title" validate:"nonblank,max=100"`
	Description string `form:"description"`
	DueDate     string `form:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Priority    string `form:"priority" validate:"oneof=Low Normal High"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	if err := v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
	return v
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "nonblank":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "datetime":
		return "Not a valid date value."
	case "oneof":
		return "Not a valid choice."
	}
	return "Invalid value."
}

// ParseTaskForm validates an add-task submission. On success the returned
// NewTask is ready for Repository.Create; otherwise every failing field is
// reported.
func ParseTaskForm(values url.Values) (NewTask, FieldErrors) {
	f := taskForm{
		Title:       values.Get("title"),
		Description: values.Get("description"),
		DueDate:     strings.TrimSpace(values.Get("due_date")),
		Priority:    values.Get("priority"),
	}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return NewTask{}, FieldErrors{"form": err.Error()}
		}
		out := make(FieldErrors, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = messageFor(fe)
		}
		return NewTask{}, out
	}

	in := NewTask{
		Title:       f.Title,
		Description: f.Description,
		Priority:    Priority(f.Priority),
	}
	if f.DueDate != "" {
		d, err := time.Parse(DateLayout, f.DueDate)
		if err != nil {
			return NewTask{}, FieldErrors{"due_date": "Not a valid date value."}
		}
		in.DueDate = &d
	}
	return in, nil
}
