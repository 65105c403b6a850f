package registry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var gcCodePattern = regexp.MustCompile(`^GC[A-Z0-9]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	must("gccode", func(fl validator.FieldLevel) bool {
		return gcCodePattern.MatchString(fl.Field().String())
	})
	must("halfstep", func(fl validator.FieldLevel) bool {
		return ValidRating(fl.Field().Float())
	})
	must("hiddendate", func(fl validator.FieldLevel) bool {
		_, err := ParseHiddenDate(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidRating reports whether r is one of 1.0, 1.5, ... 5.0.
func ValidRating(r float64) bool {
	if r < 1 || r > 5 {
		return false
	}
	return r*2 == math.Trunc(r*2)
}

// ParseHiddenDate accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date (UTC).
func ParseHiddenDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// PledgeInput creates a pledge.
type PledgeInput struct {
	GCUsername   string    `json:"gcUsername" validate:"required,notblank,max=100"`
	Title        string    `json:"title" validate:"max=200"`
	CacheType    CacheType `json:"cacheType" validate:"required,oneof=TRADITIONAL MULTI MYSTERY LETTERBOX WHERIGO VIRTUAL"`
	CacheSize    CacheSize `json:"cacheSize" validate:"required,oneof=NANO MICRO SMALL REGULAR LARGE OTHER"`
	ApproxSuburb string    `json:"approxSuburb" validate:"required,notblank,max=200"`
	ApproxState  State     `json:"approxState" validate:"required,oneof=ACT NSW NT QLD SA TAS VIC WA"`
	ConceptNotes string    `json:"conceptNotes"`
	Images       []Image   `json:"images" validate:"max=3,dive"`
}

// PledgeUpdate is a partial pledge; nil fields are left alone.
type PledgeUpdate struct {
	GCUsername   *string    `json:"gcUsername" validate:"omitnil,max=100"`
	Title        *string    `json:"title" validate:"omitnil,max=200"`
	CacheType    *CacheType `json:"cacheType" validate:"omitnil,oneof=TRADITIONAL MULTI MYSTERY LETTERBOX WHERIGO VIRTUAL"`
	CacheSize    *CacheSize `json:"cacheSize" validate:"omitnil,oneof=NANO MICRO SMALL REGULAR LARGE OTHER"`
	ApproxSuburb *string    `json:"approxSuburb" validate:"omitnil,notblank,max=200"`
	ApproxState  *State     `json:"approxState" validate:"omitnil,oneof=ACT NSW NT QLD SA TAS VIC WA"`
	ConceptNotes *string    `json:"conceptNotes"`
	Images       *[]Image   `json:"images" validate:"omitnil,max=3,dive"`
}

// SubmissionInput confirms a pledge.
type SubmissionInput struct {
	PledgeID   string    `json:"pledgeId" validate:"required"`
	GCCode     string    `json:"gcCode" validate:"required,gccode"`
	CacheName  string    `json:"cacheName" validate:"required,notblank,max=200"`
	Suburb     string    `json:"suburb" validate:"required,notblank,max=200"`
	State      State     `json:"state" validate:"required,oneof=ACT NSW NT QLD SA TAS VIC WA"`
	Difficulty float64   `json:"difficulty" validate:"halfstep"`
	Terrain    float64   `json:"terrain" validate:"halfstep"`
	Type       CacheType `json:"type" validate:"required,oneof=TRADITIONAL MULTI MYSTERY LETTERBOX WHERIGO VIRTUAL"`
	HiddenDate string    `json:"hiddenDate" validate:"required,hiddendate"`
	Notes      string    `json:"notes"`
}

// SubmissionUpdate is a partial submission. PledgeID is accepted and ignored:
// a submission never moves to another pledge.
type SubmissionUpdate struct {
	PledgeID   *string    `json:"pledgeId"`
	GCCode     *string    `json:"gcCode" validate:"omitnil,gccode"`
	CacheName  *string    `json:"cacheName" validate:"omitnil,notblank,max=200"`
	Suburb     *string    `json:"suburb" validate:"omitnil,notblank,max=200"`
	State      *State     `json:"state" validate:"omitnil,oneof=ACT NSW NT QLD SA TAS VIC WA"`
	Difficulty *float64   `json:"difficulty" validate:"omitnil,halfstep"`
	Terrain    *float64   `json:"terrain" validate:"omitnil,halfstep"`
	Type       *CacheType `json:"type" validate:"omitnil,oneof=TRADITIONAL MULTI MYSTERY LETTERBOX WHERIGO VIRTUAL"`
	HiddenDate *string    `json:"hiddenDate" validate:"omitnil,hiddendate"`
	Notes      *string    `json:"notes"`
	Images     *[]Image   `json:"images" validate:"omitnil,max=3,dive"`
}

// UsernameInput sets the caller's geocaching username.
type UsernameInput struct {
	GCUsername string `json:"gcUsername" validate:"required,notblank,max=100"`
}

// EmailInput is the body of the sign-in and edit-link requests.
type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Validate checks v against its struct tags and returns a *ValidationError
// listing every failed field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
	}
	return out
}

// fieldPath drops the struct name from the namespace: "images[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("maximum %s images allowed", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	case "gccode":
		return "invalid GC code format"
	case "halfstep":
		return "must be in 0.5 increments from 1.0 to 5.0"
	case "hiddendate":
		return "must be an ISO 8601 date"
	case "http_url":
		return "must be an http(s) URL"
	case "email":
		return "invalid email address"
	}
	return "failed " + fe.Tag()
}
