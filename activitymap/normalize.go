// Package activitymap flattens identity activity events into a record shape
// suited for audit stores and log pipelines.
package activitymap

import (
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
)

// MetadataKeyCategory stores the event family, the part of the event type
// before the first dot.
const MetadataKeyCategory = "category"

const (
	defaultChannel    = "identity"
	defaultObjectType = "account"
	anonymousActor    = "anonymous"
)

// Record is the transport agnostic form of an identity.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel    string
	objectType string
	anonymous  string
}

// WithChannel overrides the channel of every record.
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithAnonymousActor names the actor of events that carry no account, such
// as failed sign-ins against unknown contacts.
func WithAnonymousActor(actorID string) Option {
	return func(o *options) {
		o.anonymous = strings.TrimSpace(actorID)
	}
}

// Normalize converts event into a Record. The account of the event is both
// the actor and the object: every identity event is self service.
func Normalize(event identity.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:    defaultChannel,
		objectType: defaultObjectType,
		anonymous:  anonymousActor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	accountID := strings.TrimSpace(event.AccountID)
	actorID := accountID
	if actorID == "" {
		actorID = o.anonymous
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Record{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   accountID,
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

func metadata(event identity.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		out[k] = v
	}
	if category, _, ok := strings.Cut(string(event.EventType), "."); ok {
		if _, exists := out[MetadataKeyCategory]; !exists {
			out[MetadataKeyCategory] = category
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
