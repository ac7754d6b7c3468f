package store

import (
	"bytes"
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/goccy/go-json"
)

// Payload is one record as delivered by an adapter
type Payload struct {
	Ref           entities.RecordRef
	Attributes    entities.Attributes
	Relationships map[string]RelationshipPayload
}

// RelationshipPayload carries the server value of one relationship.
// HasData distinguishes an explicit empty value from an absent one.
type RelationshipPayload struct {
	Data    []entities.RecordRef
	HasData bool
	Many    bool
	Link    *string
}

// ToOne builds the payload of a one-to-one relationship; a nil ref means empty.
func ToOne(ref *entities.RecordRef) RelationshipPayload {
	p := RelationshipPayload{HasData: true}
	if ref != nil {
		p.Data = []entities.RecordRef{*ref}
	}
	return p
}

// ToMany builds the payload of a one-to-many relationship
func ToMany(refs ...entities.RecordRef) RelationshipPayload {
	return RelationshipPayload{Data: refs, HasData: true, Many: true}
}

// WithLink returns a copy of p carrying link
func (p RelationshipPayload) WithLink(link string) RelationshipPayload {
	p.Link = &link
	return p
}

// Size approximates the memory held by the payload for cache accounting
func (p *Payload) Size() int64 {
	size := int64(len(p.Ref.Type) + len(p.Ref.ID) + 32*len(p.Attributes))
	for key, rel := range p.Relationships {
		size += int64(len(key) + 24*len(rel.Data))
		if rel.Link != nil {
			size += int64(len(*rel.Link))
		}
	}
	return size
}

// Document is the JSON envelope exchanged with remote adapters:
//
//	{"data": {...} | [...] | null, "included": [...]}
type Document struct {
	Data     []*Payload
	Many     bool
	Included []*Payload
}

type wireRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type wireLinks struct {
	Related string `json:"related"`
}

type wireRelationship struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Links *wireLinks      `json:"links,omitempty"`
}

type wirePayload struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id"`
	Attributes    entities.Attributes         `json:"attributes,omitempty"`
	Relationships map[string]wireRelationship `json:"relationships,omitempty"`
}

type wireDocument struct {
	Data     json.RawMessage `json:"data"`
	Included []*Payload      `json:"included,omitempty"`
}

var null = []byte("null")

// ParseDocument decodes a document
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return &doc, nil
}

// UnmarshalJSON accepts a single resource, an array of resources or null as data
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.Included = w.Included

	raw := bytes.TrimSpace(w.Data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, null):
		d.Data, d.Many = nil, false
	case raw[0] == '[':
		d.Many = true
		return json.Unmarshal(raw, &d.Data)
	default:
		var p Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		d.Data, d.Many = []*Payload{&p}, false
	}
	return nil
}

// MarshalJSON writes data as an array when Many is set, otherwise as one resource or null
func (d *Document) MarshalJSON() ([]byte, error) {
	var data interface{}
	switch {
	case d.Many:
		list := d.Data
		if list == nil {
			list = []*Payload{}
		}
		data = list
	case len(d.Data) > 0:
		data = d.Data[0]
	}
	return json.Marshal(struct {
		Data     interface{} `json:"data"`
		Included []*Payload  `json:"included,omitempty"`
	}{data, d.Included})
}

// UnmarshalJSON decodes one resource object
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Ref = entities.NewRecordRef(w.Type, w.ID)
	if err := p.Ref.Validate(); err != nil {
		return fmt.Errorf("invalid resource: %w", err)
	}
	p.Attributes = w.Attributes
	p.Relationships = nil
	if len(w.Relationships) > 0 {
		p.Relationships = make(map[string]RelationshipPayload, len(w.Relationships))
	}
	for key, wr := range w.Relationships {
		rel, err := wr.decode()
		if err != nil {
			return fmt.Errorf("relationship %s of %s: %w", key, p.Ref, err)
		}
		p.Relationships[key] = rel
	}
	return nil
}

// MarshalJSON encodes one resource object
func (p *Payload) MarshalJSON() ([]byte, error) {
	w := wirePayload{Type: p.Ref.Type, ID: p.Ref.ID, Attributes: p.Attributes}
	if len(p.Relationships) > 0 {
		w.Relationships = make(map[string]wireRelationship, len(p.Relationships))
	}
	for key, rel := range p.Relationships {
		wr, err := rel.encode()
		if err != nil {
			return nil, err
		}
		w.Relationships[key] = wr
	}
	return json.Marshal(w)
}

func (w wireRelationship) decode() (RelationshipPayload, error) {
	var rel RelationshipPayload
	if w.Links != nil && w.Links.Related != "" {
		link := w.Links.Related
		rel.Link = &link
	}

	raw := bytes.TrimSpace(w.Data)
	switch {
	case len(raw) == 0:
	case bytes.Equal(raw, null):
		rel.HasData = true
	case raw[0] == '[':
		var refs []wireRef
		if err := json.Unmarshal(raw, &refs); err != nil {
			return rel, err
		}
		rel.HasData, rel.Many = true, true
		rel.Data = make([]entities.RecordRef, 0, len(refs))
		for _, r := range refs {
			ref := entities.NewRecordRef(r.Type, r.ID)
			if err := ref.Validate(); err != nil {
				return rel, err
			}
			rel.Data = append(rel.Data, ref)
		}
	default:
		var r wireRef
		if err := json.Unmarshal(raw, &r); err != nil {
			return rel, err
		}
		ref := entities.NewRecordRef(r.Type, r.ID)
		if err := ref.Validate(); err != nil {
			return rel, err
		}
		rel.HasData = true
		rel.Data = []entities.RecordRef{ref}
	}
	return rel, nil
}

func (rel RelationshipPayload) encode() (wireRelationship, error) {
	var w wireRelationship
	if rel.Link != nil {
		w.Links = &wireLinks{Related: *rel.Link}
	}
	if !rel.HasData {
		return w, nil
	}

	var data interface{}
	switch {
	case rel.Many:
		refs := make([]wireRef, 0, len(rel.Data))
		for _, ref := range rel.Data {
			refs = append(refs, wireRef{Type: ref.Type, ID: ref.ID})
		}
		data = refs
	case len(rel.Data) > 1:
		return w, fmt.Errorf("one-to-one relationship has %d members", len(rel.Data))
	case len(rel.Data) == 1:
		data = wireRef{Type: rel.Data[0].Type, ID: rel.Data[0].ID}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return w, err
	}
	w.Data = raw
	return w, nil
}
