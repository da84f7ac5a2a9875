package identity

// ContactState is the verification state of one contact channel.
type ContactState string

const (
	ContactStateUnverified          ContactState = "unverified"
	ContactStatePendingConfirmation ContactState = "pending_confirmation"
	ContactStateConfirmed           ContactState = "confirmed"
)

// ContactEvent moves a contact channel between states.
type ContactEvent string

const (
	ContactEventRegistered ContactEvent = "registered"
	ContactEventConfirmed  ContactEvent = "confirmed"
	ContactEventChanged    ContactEvent = "changed"
	ContactEventLinked     ContactEvent = "linked"
)

// contactTransitions lists the allowed target state per source and event.
// A pending change is not stored: the change code proves control of the new
// value and the swap lands directly in Confirmed.
var contactTransitions = map[ContactState]map[ContactEvent]ContactState{
	ContactStateUnverified: {
		ContactEventRegistered: ContactStatePendingConfirmation,
		ContactEventChanged:    ContactStateConfirmed,
		ContactEventLinked:     ContactStateConfirmed,
	},
	ContactStatePendingConfirmation: {
		ContactEventConfirmed: ContactStateConfirmed,
		ContactEventChanged:   ContactStateConfirmed,
	},
	ContactStateConfirmed: {
		ContactEventConfirmed: ContactStateConfirmed,
		ContactEventChanged:   ContactStateConfirmed,
	},
}

// CurrentContactState reports the state of the kind channel of account.
func CurrentContactState(account *Account, kind ContactType) (ContactState, error) {
	value, confirmed, err := account.ContactValue(kind)
	if err != nil {
		return "", err
	}
	switch {
	case value == "":
		return ContactStateUnverified, nil
	case confirmed:
		return ContactStateConfirmed, nil
	default:
		return ContactStatePendingConfirmation, nil
	}
}

// applyContactEvent validates event against the current state of the
// channel of c and updates account accordingly.
func applyContactEvent(account *Account, c Contact, event ContactEvent) (ContactState, error) {
	from, err := CurrentContactState(account, c.Type)
	if err != nil {
		return "", err
	}

	to, ok := contactTransitions[from][event]
	if !ok {
		clone := ErrInvalidTransition.Clone()
		if clone == nil {
			return "", ErrInvalidTransition
		}
		clone.Source = ErrInvalidTransition
		return "", clone.WithMetadata(map[string]any{
			"from":    string(from),
			"event":   string(event),
			"contact": c.Type.String(),
		})
	}

	if err := account.SetContact(c, to == ContactStateConfirmed); err != nil {
		return "", err
	}
	return to, nil
}
