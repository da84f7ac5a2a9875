package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultValidationTitle is used when a problem holds more than one message.
const DefaultValidationTitle = "One or more validation errors occurred."

// FieldErrors maps a form field key to its messages.
type FieldErrors map[string][]string

// Add appends msg to the messages of field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// TryAdd sets the messages of field only when it has none yet.
func (f FieldErrors) TryAdd(field string, msgs ...string) bool {
	if len(msgs) == 0 || f.Has(field) {
		return false
	}
	f[field] = append([]string(nil), msgs...)
	return true
}

func (f FieldErrors) Has(field string) bool {
	return len(f[field]) > 0
}

func (f FieldErrors) Empty() bool {
	for _, msgs := range f {
		if len(msgs) > 0 {
			return false
		}
	}
	return true
}

func (f FieldErrors) count() int {
	n := 0
	for _, msgs := range f {
		n += len(msgs)
	}
	return n
}

// Form is anything the Validator can check. ValidationRules must return
// field rules bound to the form's own fields.
type Form interface {
	ValidationRules(r Rules) []*validation.FieldRules
}

// AsyncRule is a business rule that runs after the structural rules passed.
// Expected failures go into errs; a returned error aborts validation.
type AsyncRule func(ctx context.Context, errs FieldErrors) error

// ValidationResult is the outcome of Validator.Validate.
type ValidationResult struct {
	Errors FieldErrors
}

func (r *ValidationResult) Valid() bool {
	return r == nil || r.Errors.Empty()
}

// Problem returns the result as an error, nil when the form is valid.
func (r *ValidationResult) Problem() error {
	if r.Valid() {
		return nil
	}
	return NewValidationProblem(r.Errors)
}

// ValidationProblem is the user facing validation failure.
type ValidationProblem struct {
	Title  string      `json:"title"`
	Errors FieldErrors `json:"errors"`
}

// NewValidationProblem builds a problem with a title derived from errs.
func NewValidationProblem(errs FieldErrors) *ValidationProblem {
	return &ValidationProblem{
		Title:  problemTitle(errs),
		Errors: errs,
	}
}

// NewFieldProblem is a shortcut for a single field failure.
func NewFieldProblem(field, msg string) *ValidationProblem {
	errs := FieldErrors{}
	errs.Add(field, msg)
	return NewValidationProblem(errs)
}

func (p *ValidationProblem) Error() string {
	return p.Title
}

func (p *ValidationProblem) Unwrap() error {
	return ErrValidation
}

// AsValidationProblem extracts a *ValidationProblem from err.
func AsValidationProblem(err error) (*ValidationProblem, bool) {
	var problem *ValidationProblem
	if goerrors.As(err, &problem) {
		return problem, true
	}
	return nil, false
}

func problemTitle(errs FieldErrors) string {
	if errs.count() != 1 {
		return DefaultValidationTitle
	}
	for _, msgs := range errs {
		if len(msgs) == 1 {
			return msgs[0]
		}
	}
	return DefaultValidationTitle
}

// Validator runs structural rules then async business rules against a form.
type Validator struct {
	rules Rules
}

// NewValidator returns a validator parsing contacts with parser.
func NewValidator(parser ContactParser) *Validator {
	return &Validator{rules: Rules{contacts: parser}}
}

// Validate checks form. Structural rules stop at the first failure of each
// field but every field is checked. Async rules only run on a structurally
// valid form and add into the same error map. An error is only returned for
// programming errors.
func (v *Validator) Validate(ctx context.Context, form Form, asyncRules ...AsyncRule) (*ValidationResult, error) {
	if form == nil {
		return nil, goerrors.New("validate: form must not be nil", goerrors.CategoryInternal)
	}

	result := &ValidationResult{Errors: FieldErrors{}}

	err := validation.ValidateStruct(form, form.ValidationRules(v.rules)...)
	if err != nil {
		errs, ok := err.(validation.Errors)
		if !ok {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "validate: structural rules failed")
		}
		for _, key := range sortedKeys(errs) {
			result.Errors.Add(key, errs[key].Error())
		}
		return result, nil
	}

	for _, rule := range asyncRules {
		if rule == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := rule(ctx, result.Errors); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func sortedKeys(errs validation.Errors) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Label turns a field key such as "new_username" or "firstName" into
// "New username".
func Label(field string) string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	for i, r := range field {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0:
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	if len(words) == 0 {
		return ""
	}
	words[0] = cases.Title(language.English).String(words[0])
	return strings.Join(words, " ")
}

// Rules builds ozzo rules with messages rendered against field labels.
type Rules struct {
	contacts ContactParser
}

// NotEmpty fails on blank or whitespace only strings.
func (r Rules) NotEmpty(label string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if strings.TrimSpace(stringValue(value)) == "" {
			return fmt.Errorf("'%s' must not be empty.", label)
		}
		return nil
	})
}

// MaxLength fails when the value is longer than max runes.
func (r Rules) MaxLength(label string, max int) validation.Rule {
	return validation.By(func(value interface{}) error {
		if n := len([]rune(stringValue(value))); n > max {
			return fmt.Errorf("The length of '%s' must be %d characters or fewer. You entered %d characters.", label, max, n)
		}
		return nil
	})
}

// Contact fails when the value is neither a valid email nor a valid phone
// number.
func (r Rules) Contact(label string) validation.Rule {
	return validation.By(func(value interface{}) error {
		raw := stringValue(value)
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		kind := DetectContactType(raw)
		if _, err := r.contacts.Parse(raw); err != nil {
			switch kind {
			case ContactEmail, ContactPhoneNumber:
				return fmt.Errorf("'%s' is not valid.", kind.Label())
			default:
				return fmt.Errorf("'%s' is not valid.", label)
			}
		}
		return nil
	})
}

// Password enforces the password policy.
func (r Rules) Password(label string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if msg := passwordPolicyViolation(label, stringValue(value)); msg != "" {
			return errors.New(msg)
		}
		return nil
	})
}

// EqualTo fails when the value differs from other.
func (r Rules) EqualTo(label, otherLabel, other string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if stringValue(value) != other {
			return fmt.Errorf("'%s' must be equal to '%s'.", label, otherLabel)
		}
		return nil
	})
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	default:
		return ""
	}
}

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

func passwordPolicyViolation(label, password string) string {
	if password == "" {
		return ""
	}
	n := len([]rune(password))
	if n < minPasswordLength {
		return fmt.Sprintf("'%s' must be at least %d characters.", label, minPasswordLength)
	}
	if n > maxPasswordLength {
		return fmt.Sprintf("'%s' must be %d characters or fewer.", label, maxPasswordLength)
	}

	var upper, lower, digit, symbol bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case !unicode.IsLetter(c):
			symbol = true
		}
	}

	switch {
	case !digit:
		return fmt.Sprintf("'%s' must have at least one digit ('0'-'9').", label)
	case !symbol:
		return fmt.Sprintf("'%s' must have at least one non alphanumeric character.", label)
	case !upper:
		return fmt.Sprintf("'%s' must have at least one uppercase ('A'-'Z').", label)
	case !lower:
		return fmt.Sprintf("'%s' must have at least one lowercase ('a'-'z').", label)
	}
	return ""
}
