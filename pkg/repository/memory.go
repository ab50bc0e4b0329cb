package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"messengerService/pkg/api"
)

type listener struct {
	query  Query
	notify chan struct{}
}

// MemoryStore is a process-local DocumentStore with the merge, ordering and
// live-query semantics of the managed backend.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	listeners   map[*listener]struct{}
	now         func() time.Time

	// failures makes the next write to a path fail, for tests.
	failures map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		listeners:   make(map[*listener]struct{}),
		now:         time.Now,
		failures:    make(map[string]error),
	}
}

// SetClock replaces the source of server timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// FailNextWrite makes the next write to path return err.
func (m *MemoryStore) FailNextWrite(path string, err error) {
	m.mu.Lock()
	m.failures[path] = err
	m.mu.Unlock()
}

func (m *MemoryStore) takeFailure(path string) error {
	if err, ok := m.failures[path]; ok {
		delete(m.failures, path)
		return api.Unavailable(err, "write "+path)
	}
	return nil
}

func (m *MemoryStore) ReadOne(_ context.Context, path string) (*Document, error) {
	collection, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &Document{Id: id, Fields: copyMap(fields)}, nil
}

func (m *MemoryStore) UpsertMerge(_ context.Context, path string, fields map[string]interface{}) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.takeFailure(path); err != nil {
		m.mu.Unlock()
		return err
	}
	docs := m.collection(collection)
	existing, ok := docs[id]
	if !ok {
		existing = make(map[string]interface{})
	}
	docs[id] = merge(existing, m.resolve(fields).(map[string]interface{}))
	m.mu.Unlock()

	m.changed(collection)
	return nil
}

func (m *MemoryStore) Create(_ context.Context, path string, fields map[string]interface{}) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.takeFailure(path); err != nil {
		m.mu.Unlock()
		return err
	}
	docs := m.collection(collection)
	if _, ok := docs[id]; ok {
		m.mu.Unlock()
		return api.ErrAlreadyExists
	}
	docs[id] = m.resolve(fields).(map[string]interface{})
	m.mu.Unlock()

	m.changed(collection)
	return nil
}

func (m *MemoryStore) UpdateFields(_ context.Context, path string, fields map[string]interface{}) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.takeFailure(path); err != nil {
		m.mu.Unlock()
		return err
	}
	existing, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return api.ErrNotFound
	}
	for key, value := range m.resolve(fields).(map[string]interface{}) {
		existing[key] = value
	}
	m.mu.Unlock()

	m.changed(collection)
	return nil
}

func (m *MemoryStore) Append(_ context.Context, collection string, fields map[string]interface{}) (string, error) {
	if !validCollection(collection) {
		return "", api.Invalid("%q is not a collection path", collection)
	}

	m.mu.Lock()
	if err := m.takeFailure(collection); err != nil {
		m.mu.Unlock()
		return "", err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	m.collection(collection)[id] = m.resolve(fields).(map[string]interface{})
	m.mu.Unlock()

	m.changed(collection)
	return id, nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.takeFailure(path); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.collections[collection], id)
	m.mu.Unlock()

	m.changed(collection)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Document, error) {
	if !validCollection(q.Collection) {
		return nil, api.Invalid("%q is not a collection path", q.Collection)
	}
	return m.run(q), nil
}

func (m *MemoryStore) Listen(ctx context.Context, q Query, onSnapshot func([]Document)) (*api.Subscription, error) {
	if !validCollection(q.Collection) {
		return nil, api.Invalid("%q is not a collection path", q.Collection)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &listener{query: q, notify: make(chan struct{}, 1)}

	m.mu.Lock()
	m.listeners[l] = struct{}{}
	m.mu.Unlock()

	subscription := api.NewSubscription(func() {
		cancel()
		m.mu.Lock()
		delete(m.listeners, l)
		m.mu.Unlock()
	})

	// The first emission carries the current result.
	l.notify <- struct{}{}

	go func() {
		for {
			select {
			case <-ctx.Done():
				subscription.Fail(ctx.Err())
				return
			case <-l.notify:
				docs := m.run(q)
				subscription.Deliver(func() { onSnapshot(docs) })
			}
		}
	}()

	return subscription, nil
}

func (m *MemoryStore) collection(path string) map[string]map[string]interface{} {
	docs, ok := m.collections[path]
	if !ok {
		docs = make(map[string]map[string]interface{})
		m.collections[path] = docs
	}
	return docs
}

// changed wakes every listener on collection. Pending wake-ups coalesce, each
// emission reads the state current at that time.
func (m *MemoryStore) changed(collection string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for l := range m.listeners {
		if l.query.Collection != collection {
			continue
		}
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
}

func (m *MemoryStore) run(q Query) []Document {
	m.mu.RLock()
	var docs []Document
	for id, fields := range m.collections[q.Collection] {
		if matches(id, fields, q.Filters) {
			docs = append(docs, Document{Id: id, Fields: copyMap(fields)})
		}
	}
	m.mu.RUnlock()

	// Backend order when no order is given is by id.
	orders := append(append([]Order{}, q.Orders...), Order{Path: DocumentID})
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			c := compareValues(fieldValue(docs[i], o.Path), fieldValue(docs[j], o.Path))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	if docs == nil {
		docs = []Document{}
	}
	return docs
}

func (m *MemoryStore) resolve(value interface{}) interface{} {
	switch v := value.(type) {
	case serverTimestamp:
		return m.now().UTC()
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for key, inner := range v {
			resolved[key] = m.resolve(inner)
		}
		return resolved
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, inner := range v {
			resolved[i] = m.resolve(inner)
		}
		return resolved
	default:
		return v
	}
}

func fieldValue(doc Document, path string) interface{} {
	if path == DocumentID {
		return doc.Id
	}
	var current interface{} = doc.Fields
	for _, part := range strings.Split(path, ".") {
		fields, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = fields[part]
	}
	return current
}

func matches(id string, fields map[string]interface{}, filters []Filter) bool {
	doc := Document{Id: id, Fields: fields}
	for _, f := range filters {
		value := fieldValue(doc, f.Path)
		switch f.Op {
		case "==":
			if compareValues(value, f.Value) != 0 {
				return false
			}
		case "array-contains":
			if !contains(value, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func contains(array interface{}, want interface{}) bool {
	switch values := array.(type) {
	case []string:
		for _, v := range values {
			if compareValues(v, want) == 0 {
				return true
			}
		}
	case []interface{}:
		for _, v := range values {
			if compareValues(v, want) == 0 {
				return true
			}
		}
	}
	return false
}

// compareValues orders nil before booleans, numbers, timestamps and strings.
func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(x, b.(string))
	}

	if fa, ok := number(a); ok {
		fb, _ := number(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return 0
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// merge deep-merges src into dst: nested maps merge key by key, everything
// else replaces.
func merge(dst, src map[string]interface{}) map[string]interface{} {
	for key, value := range src {
		nested, ok := value.(map[string]interface{})
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]interface{})
		if !ok {
			existing = make(map[string]interface{})
		}
		dst[key] = merge(existing, nested)
	}
	return dst
}

func copyMap(fields map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		copied[key] = copyValue(value)
	}
	return copied
}

func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return copyMap(v)
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, inner := range v {
			copied[i] = copyValue(inner)
		}
		return copied
	default:
		return v
	}
}
