package identity

import (
	"regexp"
	"strings"

	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// ContactType is the closed set of contact channels an account can hold.
type ContactType int

const (
	ContactUnknown ContactType = iota
	ContactEmail
	ContactPhoneNumber
)

// DefaultPhoneRegion is used to parse phone numbers given without a
// country prefix.
const DefaultPhoneRegion = "US"

var phoneShape = regexp.MustCompile(`^\+?[0-9(][0-9 ()\-.]{3,}$`)

var (
	errInvalidEmail = goerrors.New("invalid email address", goerrors.CategoryValidation).
			WithTextCode("INVALID_EMAIL")
	errInvalidPhoneNumber = goerrors.New("invalid phone number", goerrors.CategoryValidation).
				WithTextCode("INVALID_PHONE_NUMBER")
)

func (t ContactType) String() string {
	switch t {
	case ContactEmail:
		return "Email"
	case ContactPhoneNumber:
		return "PhoneNumber"
	default:
		return "Unknown"
	}
}

// Label is the human readable name used in validation messages.
func (t ContactType) Label() string {
	switch t {
	case ContactEmail:
		return "Email"
	case ContactPhoneNumber:
		return "Phone number"
	default:
		return "Email or phone number"
	}
}

// DetectContactType sniffs the format of a raw username. It does not
// validate the value.
func DetectContactType(raw string) ContactType {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ContactUnknown
	case strings.Contains(raw, "@"):
		return ContactEmail
	case phoneShape.MatchString(raw):
		return ContactPhoneNumber
	default:
		return ContactUnknown
	}
}

// Contact is a normalized contact value tagged with its type.
type Contact struct {
	Type  ContactType
	Value string
}

func (c Contact) IsZero() bool {
	return c.Type == ContactUnknown && c.Value == ""
}

func (c Contact) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Type.String() + ":" + c.Value
}

// Channel returns the delivery channel that reaches this contact.
func (c Contact) Channel() (Channel, error) {
	switch c.Type {
	case ContactEmail:
		return ChannelEmail, nil
	case ContactPhoneNumber:
		return ChannelSMS, nil
	default:
		return "", ErrUnsupportedContactType
	}
}

// ContactParser turns raw usernames into normalized contacts.
type ContactParser struct {
	Region string
}

// ParseContact parses raw with DefaultPhoneRegion.
func ParseContact(raw string) (Contact, error) {
	return ContactParser{Region: DefaultPhoneRegion}.Parse(raw)
}

// Parse sniffs raw once, validates it for the detected type and returns
// the normalized value. Emails are lower cased, phone numbers are E.164.
func (p ContactParser) Parse(raw string) (Contact, error) {
	kind := DetectContactType(raw)
	switch kind {
	case ContactEmail:
		value, err := NormalizeEmail(raw)
		if err != nil {
			return Contact{}, err
		}
		return Contact{Type: ContactEmail, Value: value}, nil
	case ContactPhoneNumber:
		value, err := NormalizePhoneNumber(raw, p.region())
		if err != nil {
			return Contact{}, err
		}
		return Contact{Type: ContactPhoneNumber, Value: value}, nil
	default:
		return Contact{}, ErrUnsupportedContactType
	}
}

func (p ContactParser) region() string {
	if p.Region == "" {
		return DefaultPhoneRegion
	}
	return strings.ToUpper(p.Region)
}

// NormalizeEmail validates and lower cases an email address.
func NormalizeEmail(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", errInvalidEmail
	}
	if err := is.Email.Validate(value); err != nil {
		return "", errInvalidEmail
	}
	return value, nil
}

// NormalizePhoneNumber validates raw and formats it as E.164.
func NormalizePhoneNumber(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", errInvalidPhoneNumber
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
