package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StringList accepts a JSON string or array of strings. Recipient fields on
// the wire use either form.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or string list: %w", err)
	}
	*l = StringList(many)
	return nil
}

// MarshalJSON implements json.Marshaler, collapsing single-element lists back
// to a bare string.
func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// ObjectRef accepts either a bare IRI or an inline object carrying an id.
type ObjectRef struct {
	IRI string
	// Raw keeps the inline object when one was supplied, so handlers can
	// inspect nested fields (e.g. the Follow inside an Undo).
	Raw map[string]any
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ObjectRef) UnmarshalJSON(data []byte) error {
	var iri string
	if err := json.Unmarshal(data, &iri); err == nil {
		r.IRI = iri
		r.Raw = nil
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected IRI or inline object: %w", err)
	}
	r.Raw = obj
	if id, ok := obj["id"].(string); ok {
		r.IRI = id
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r ObjectRef) MarshalJSON() ([]byte, error) {
	if r.Raw != nil {
		return json.Marshal(r.Raw)
	}
	return json.Marshal(r.IRI)
}

// IsZero reports whether the reference carries neither an IRI nor an object.
func (r ObjectRef) IsZero() bool { return r.IRI == "" && r.Raw == nil }

// NestedType returns the type of the inline object, when present.
func (r ObjectRef) NestedType() string {
	if r.Raw == nil {
		return ""
	}
	t, _ := r.Raw["type"].(string)
	return t
}

// ActivityPayload is the decoded wire form of an activity or actor document.
// Only the fields the engine routes on are typed; everything else survives in
// Extra so re-broadcasts do not drop data.
type ActivityPayload struct {
	Context   any        `json:"@context,omitempty"`
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Actor     ObjectRef  `json:"actor,omitempty"`
	Object    ObjectRef  `json:"object,omitempty"`
	To        StringList `json:"to,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Updated   *time.Time `json:"updated,omitempty"`

	// Actor-document fields, populated when the payload describes an actor.
	PreferredUsername string    `json:"preferredUsername,omitempty"`
	Name              string    `json:"name,omitempty"`
	Icon              ObjectRef `json:"icon,omitempty"`
	Inbox             string    `json:"inbox,omitempty"`
	Outbox            string    `json:"outbox,omitempty"`

	Extra map[string]any `json:"-"`
}

// IsActor reports whether the payload describes an actor document rather
// than an activity.
func (p *ActivityPayload) IsActor() bool {
	return ActorType(p.Type).Valid()
}

// ActorIRI returns the activity's actor identifier, when present.
func (p *ActivityPayload) ActorIRI() string { return p.Actor.IRI }

// DecodePayload unmarshals a raw document, keeping unknown fields in Extra.
func DecodePayload(raw []byte) (*ActivityPayload, error) {
	var payload ActivityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err == nil {
		payload.Extra = extra
	}
	return &payload, nil
}

// Normalize returns the canonical map representation persisted as the
// record payload.
func (p *ActivityPayload) Normalize() map[string]any {
	if p.Extra != nil {
		return p.Extra
	}
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]any{"id": p.ID, "type": p.Type}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"id": p.ID, "type": p.Type}
	}
	return out
}
