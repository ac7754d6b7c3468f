// Package memory implements store.Adapter over an in-process record set,
// optionally seeded from a YAML fixture file.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/store"
)

// Fetch kinds counted by Calls
const (
	KindRecord = "record"
	KindMany   = "many"
	KindLink   = "link"
)

// Adapter serves payloads from memory. It is safe for concurrent use.
type Adapter struct {
	mu       sync.Mutex
	records  map[entities.RecordRef]*store.Payload
	links    map[string][]entities.RecordRef
	calls    map[string]int
	failNext error
	latency  time.Duration
}

// New returns an empty adapter
func New() *Adapter {
	return &Adapter{
		records: make(map[entities.RecordRef]*store.Payload),
		links:   make(map[string][]entities.RecordRef),
		calls:   make(map[string]int),
	}
}

// fixture file layout:
//
//	records:
//	  - type: post
//	    id: "1"
//	    attributes: {title: Hello}
//	    relationships:
//	      author: {data: ["person:1"]}
//	      comments: {many: true, link: post/1/comments}
//	links:
//	  post/1/comments: ["comment:1", "comment:2"]
type fixtureFile struct {
	Records []fixtureRecord     `yaml:"records"`
	Links   map[string][]string `yaml:"links"`
}

type fixtureRecord struct {
	Type          string                         `yaml:"type"`
	ID            string                         `yaml:"id"`
	Attributes    map[string]interface{}         `yaml:"attributes"`
	Relationships map[string]fixtureRelationship `yaml:"relationships"`
}

type fixtureRelationship struct {
	Data *[]string `yaml:"data"`
	Many bool      `yaml:"many"`
	Link string    `yaml:"link"`
}

// LoadFile reads a YAML fixture file
func LoadFile(path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return Load(data)
}

// Load parses YAML fixtures
func Load(data []byte) (*Adapter, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	a := New()
	for i, rec := range file.Records {
		p, err := rec.payload()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := a.records[p.Ref]; dup {
			return nil, fmt.Errorf("record %d: duplicate record %s", i, p.Ref)
		}
		a.records[p.Ref] = p
	}
	for link, members := range file.Links {
		refs, err := parseRefs(members)
		if err != nil {
			return nil, fmt.Errorf("link %q: %w", link, err)
		}
		a.links[link] = refs
	}
	return a, nil
}

func (r fixtureRecord) payload() (*store.Payload, error) {
	p := &store.Payload{
		Ref:           entities.NewRecordRef(r.Type, r.ID),
		Attributes:    entities.Attributes(r.Attributes),
		Relationships: make(map[string]store.RelationshipPayload, len(r.Relationships)),
	}
	if err := p.Ref.Validate(); err != nil {
		return nil, err
	}
	if p.Attributes == nil {
		p.Attributes = entities.Attributes{}
	}
	for key, rel := range r.Relationships {
		out := store.RelationshipPayload{Many: rel.Many}
		if rel.Data != nil {
			refs, err := parseRefs(*rel.Data)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", p.Ref, key, err)
			}
			if !rel.Many && len(refs) > 1 {
				return nil, fmt.Errorf("%s.%s: one-to-one relationship lists %d members", p.Ref, key, len(refs))
			}
			out.Data = refs
			out.HasData = true
		}
		if rel.Link != "" {
			out = out.WithLink(rel.Link)
		}
		p.Relationships[key] = out
	}
	return p, nil
}

func parseRefs(values []string) ([]entities.RecordRef, error) {
	refs := make([]entities.RecordRef, 0, len(values))
	for _, v := range values {
		ref, err := entities.ParseRecordRef(v)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Put adds or replaces records
func (a *Adapter) Put(payloads ...*store.Payload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range payloads {
		a.records[p.Ref] = p
	}
}

// Write stores a payload
func (a *Adapter) Write(_ context.Context, p *store.Payload) error {
	if err := p.Ref.Validate(); err != nil {
		return err
	}
	a.Put(p)
	return nil
}

// Delete removes a record, or returns store.ErrNotFound
func (a *Adapter) Delete(_ context.Context, ref entities.RecordRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[ref]; !ok {
		return fmt.Errorf("record %s: %w", ref, store.ErrNotFound)
	}
	delete(a.records, ref)
	return nil
}

// SetLink sets the members served for link
func (a *Adapter) SetLink(link string, refs ...entities.RecordRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.links[link] = append([]entities.RecordRef(nil), refs...)
}

// FailNext makes the next fetch of any kind return err
func (a *Adapter) FailNext(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = err
}

// SetLatency delays every fetch by d, or until the context is done
func (a *Adapter) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// Calls returns how often the given fetch kind was called
func (a *Adapter) Calls(kind string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[kind]
}

// Len returns the number of stored records
func (a *Adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *Adapter) begin(ctx context.Context, kind string) error {
	a.mu.Lock()
	a.calls[kind]++
	err := a.failNext
	a.failNext = nil
	latency := a.latency
	a.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// FindRecord returns the stored record or store.ErrNotFound
func (a *Adapter) FindRecord(ctx context.Context, ref entities.RecordRef) (*store.Payload, error) {
	if err := a.begin(ctx, KindRecord); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.records[ref]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", ref, store.ErrNotFound)
	}
	return p, nil
}

// FindMany returns the stored records among refs, in request order
func (a *Adapter) FindMany(ctx context.Context, refs []entities.RecordRef) ([]*store.Payload, error) {
	if err := a.begin(ctx, KindMany); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*store.Payload, 0, len(refs))
	for _, ref := range refs {
		if p, ok := a.records[ref]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindLink serves an explicitly set link, or resolves a link in the
// store.LinkFor form from the owner's stored relationship data.
func (a *Adapter) FindLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) ([]*store.Payload, error) {
	if err := a.begin(ctx, KindLink); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	refs, ok := a.links[link]
	if !ok {
		var err error
		if refs, err = a.membersFromOwner(link); err != nil {
			return nil, err
		}
	}

	out := make([]*store.Payload, 0, len(refs))
	for _, ref := range refs {
		p, ok := a.records[ref]
		if !ok {
			return nil, fmt.Errorf("link %q of %s.%s references %s: %w", link, owner, rel.Name, ref, store.ErrNotFound)
		}
		out = append(out, p)
	}
	return out, nil
}

func (a *Adapter) membersFromOwner(link string) ([]entities.RecordRef, error) {
	owner, relation, err := store.ParseLink(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, store.ErrNotFound)
	}
	p, ok := a.records[owner]
	if !ok {
		return nil, fmt.Errorf("owner %s of link %q: %w", owner, link, store.ErrNotFound)
	}
	rp, ok := p.Relationships[relation]
	if !ok || !rp.HasData {
		return nil, nil
	}
	return rp.Data, nil
}
