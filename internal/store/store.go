package store

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
)

type slotKind int

const (
	slotStored slotKind = iota
	slotDerived
	slotRelated
)

// slot is the per-field accessor: stored data, a derived closure, or a
// relation to resolve.
type slot struct {
	kind    slotKind
	field   metadata.Field
	compute metadata.ComputeFunc
}

// Store holds the entities of one entity type. It is not safe for
// concurrent use; callers sharing stores across goroutines must serialize
// access to all stores of a Registry behind a single lock.
type Store struct {
	name      string
	schema    *metadata.Schema
	keys      []string
	stored    []string
	slots     map[string]slot
	items     []*Entity
	index     map[string]int
	relations *Registry
	injected  *Observer
	removed   *Observer
	log       *zap.Logger
	evaluator *engine.ExprLangEvaluator
}

type Option func(*Store)

// WithLogger sets the logger used for mutation debug lines.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithEvaluator shares an expression evaluator (and its program cache)
// between stores.
func WithEvaluator(ev *engine.ExprLangEvaluator) Option {
	return func(s *Store) {
		s.evaluator = ev
	}
}

// New builds a store for schema and registers it in reg under the schema
// name. reg may be nil, in which case every relation read fails.
func New(reg *Registry, schema *metadata.Schema, opts ...Option) (*Store, error) {
	if schema == nil {
		return nil, engine.InvalidSchemaError(errNilSchema)
	}
	schema = schema.Clone()
	if err := schema.Validate(); err != nil {
		return nil, engine.InvalidSchemaError(err)
	}

	s := &Store{
		name:      schema.Name,
		schema:    schema,
		keys:      schema.Keys(),
		stored:    schema.StoredFields(),
		slots:     make(map[string]slot, len(schema.Fields)),
		items:     []*Entity{},
		index:     make(map[string]int),
		relations: reg,
		injected:  NewObserver(),
		removed:   NewObserver(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = engine.NewExprLangEvaluator()
	}

	for _, name := range s.stored {
		f := schema.GetField(name)
		if f == nil {
			f = &metadata.Field{Name: name}
		}
		s.slots[name] = slot{kind: slotStored, field: *f}
	}
	for _, f := range schema.Fields {
		switch f.Kind {
		case metadata.KindComputed:
			compute := f.Compute
			if compute == nil {
				fn, err := s.evaluator.ComputeFunc(f.Expression)
				if err != nil {
					return nil, engine.InvalidSchemaError(err)
				}
				compute = fn
			}
			s.slots[f.Name] = slot{kind: slotDerived, field: f, compute: compute}
		case metadata.KindRelation:
			s.slots[f.Name] = slot{kind: slotRelated, field: f}
		}
	}

	if reg != nil {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name returns the entity-type name.
func (s *Store) Name() string {
	return s.name
}

// Schema returns the store's schema. It must not be modified.
func (s *Store) Schema() *metadata.Schema {
	return s.schema
}

// Len returns the number of entities held.
func (s *Store) Len() int {
	return len(s.items)
}

// InjectObserver returns the channel that receives every injected entity.
func (s *Store) InjectObserver() *Observer {
	return s.injected
}

// RemoveObserver returns the channel that receives every removed entity.
func (s *Store) RemoveObserver() *Observer {
	return s.removed
}

// InjectOne materializes and upserts a single record.
func (s *Store) InjectOne(record Record) (*Entity, error) {
	entities, err := s.Inject(record)
	if err != nil {
		return nil, err
	}
	return entities[0], nil
}

// Inject materializes the records and upserts them by unique key. An entity
// with the same key is replaced in place; otherwise the entity is appended.
// Every record is validated before the store is touched, so one invalid
// record fails the whole call and leaves the store unchanged.
func (s *Store) Inject(records ...Record) ([]*Entity, error) {
	entities := make([]*Entity, len(records))
	for i, r := range records {
		e, err := s.materialize(r)
		if err != nil {
			return nil, err
		}
		entities[i] = e
	}

	for _, e := range entities {
		s.put(e)
		s.injected.publish(e)
	}
	s.log.Debug("injected entities", zap.String("store", s.name), zap.Int("count", len(entities)))
	return entities, nil
}

// RemoveByID removes the entity with the given key and returns it, or nil
// when no entity has that key. Composite keys are passed as []any.
func (s *Store) RemoveByID(key any) (*Entity, error) {
	k, err := s.lookupKey(key)
	if err != nil {
		return nil, err
	}
	i, ok := s.index[k]
	if !ok {
		return nil, nil
	}

	e := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	s.reindex()

	s.removed.publish(e)
	s.log.Debug("removed entity", zap.String("store", s.name), zap.String("key", k))
	return e, nil
}

type removeOptions struct {
	emitSignal bool
}

type RemoveOption func(*removeOptions)

// WithoutSignal suppresses remove notifications for a Remove call.
func WithoutSignal() RemoveOption {
	return func(o *removeOptions) {
		o.emitSignal = false
	}
}

// Remove removes and returns every entity matching where, keeping the rest
// in order. A nil where removes everything. Each removed entity is
// published on the remove channel, in removal order, unless WithoutSignal
// is given.
func (s *Store) Remove(where engine.Where, opts ...RemoveOption) ([]*Entity, error) {
	o := removeOptions{emitSignal: true}
	for _, opt := range opts {
		opt(&o)
	}

	if len(s.items) == 0 {
		return []*Entity{}, nil
	}

	var removed []*Entity
	rest := make([]*Entity, 0, len(s.items))
	if where == nil {
		removed = s.items
	} else {
		for _, e := range s.items {
			matched, err := engine.FilterByCondition(s.schema, e, where)
			if err != nil {
				return nil, err
			}
			if matched {
				removed = append(removed, e)
			} else {
				rest = append(rest, e)
			}
		}
	}

	s.items = rest
	s.reindex()

	if o.emitSignal {
		for _, e := range removed {
			s.removed.publish(e)
		}
	}
	if removed == nil {
		removed = []*Entity{}
	}
	s.log.Debug("removed entities", zap.String("store", s.name), zap.Int("count", len(removed)))
	return removed, nil
}

// Clear removes every entity and publishes each removal.
func (s *Store) Clear() []*Entity {
	removed, _ := s.Remove(nil)
	return removed
}

// FindByID returns the entity with the given key, or nil. Composite keys
// are passed as []any in unique-key order.
func (s *Store) FindByID(key any) *Entity {
	if metadata.IsNil(key) {
		return nil
	}
	k, err := s.lookupKey(key)
	if err != nil {
		return nil
	}
	i, ok := s.index[k]
	if !ok {
		return nil
	}
	return s.items[i]
}

// FindOne returns the first entity, in store order, matching where.
func (s *Store) FindOne(where engine.Where) (*Entity, error) {
	for _, e := range s.items {
		matched, err := engine.FilterByCondition(s.schema, e, where)
		if err != nil {
			return nil, err
		}
		if matched {
			return e, nil
		}
	}
	return nil, nil
}

// FindAll returns every entity matching where in store order. A nil where
// returns a copy of the whole collection.
func (s *Store) FindAll(where engine.Where) ([]*Entity, error) {
	if where == nil {
		return slices.Clone(s.items), nil
	}
	found := []*Entity{}
	for _, e := range s.items {
		matched, err := engine.FilterByCondition(s.schema, e, where)
		if err != nil {
			return nil, err
		}
		if matched {
			found = append(found, e)
		}
	}
	return found, nil
}

func (s *Store) materialize(r Record) (*Entity, error) {
	for _, k := range s.keys {
		v, ok := r[k]
		if !ok {
			return nil, engine.MissingKeyError(s.name, k)
		}
		if _, ok := keyPart(v); !ok {
			return nil, engine.InvalidKeyTypeError(s.name, k, v)
		}
	}

	values := make(map[string]any, len(s.stored))
	for _, name := range s.stored {
		raw, ok := r[name]
		if !ok {
			continue
		}
		values[name] = coerceValue(s.slots[name].field.Kind, raw)
	}

	parts := make([]string, len(s.keys))
	for i, k := range s.keys {
		part, ok := keyPart(values[k])
		if !ok {
			return nil, engine.InvalidKeyTypeError(s.name, k, values[k])
		}
		parts[i] = part
	}

	return &Entity{
		store:  s,
		values: values,
		key:    strings.Join(parts, keySeparator),
	}, nil
}

func (s *Store) put(e *Entity) {
	if i, ok := s.index[e.key]; ok {
		s.items[i] = e
		return
	}
	s.index[e.key] = len(s.items)
	s.items = append(s.items, e)
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, e := range s.items {
		s.index[e.key] = i
	}
}

const keySeparator = "\x1f"

// lookupKey builds the index key for a caller-supplied key.
func (s *Store) lookupKey(key any) (string, error) {
	if len(s.keys) == 1 {
		if tuple, ok := key.([]any); ok && len(tuple) == 1 {
			key = tuple[0]
		}
		part, ok := keyPart(key)
		if !ok {
			return "", engine.InvalidKeyTypeError(s.name, s.keys[0], key)
		}
		return part, nil
	}

	tuple, ok := key.([]any)
	if !ok || len(tuple) != len(s.keys) {
		return "", engine.InvalidKeyTypeError(s.name, strings.Join(s.keys, ","), key)
	}
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		part, ok := keyPart(v)
		if !ok {
			return "", engine.InvalidKeyTypeError(s.name, s.keys[i], v)
		}
		parts[i] = part
	}
	return strings.Join(parts, keySeparator), nil
}

// keyPart encodes a single unique-key value. Only strings and numbers are
// valid keys; numbers of any Go type share one encoding. NaN never equals
// another key and is rejected.
func keyPart(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return "s:" + s, true
	}
	if f, ok := engine.ToFloat64(v); ok {
		if math.IsNaN(f) {
			return "", false
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}
