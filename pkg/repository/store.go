package repository

import (
	"context"
	"strings"

	"messengerService/pkg/api"
)

// DocumentID orders or filters by the document id instead of a field.
const DocumentID = "__name__"

// ServerTimestamp is replaced by the backend's commit time when written.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Document is a stored record and the id it lives under.
type Document struct {
	Id     string
	Fields map[string]interface{}
}

type Filter struct {
	Path  string
	Op    string // "==" or "array-contains"
	Value interface{}
}

type Order struct {
	Path string
	Desc bool
}

type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
}

// DocumentStore is the managed document database the adapters sit on.
// Paths are slash separated: "conversations/{id}" names a document,
// "conversations/{id}/messages" a collection.
type DocumentStore interface {
	// ReadOne returns nil without error when the document is absent.
	ReadOne(ctx context.Context, path string) (*Document, error)
	// UpsertMerge creates the document or deep-merges fields into it. Fields
	// not named are preserved.
	UpsertMerge(ctx context.Context, path string, fields map[string]interface{}) error
	// Create writes a new document. It fails with api.ErrAlreadyExists when
	// the document is present and leaves it untouched.
	Create(ctx context.Context, path string, fields map[string]interface{}) error
	// UpdateFields overwrites the named top-level fields of an existing
	// document. It fails with api.ErrNotFound when the document is absent.
	UpdateFields(ctx context.Context, path string, fields map[string]interface{}) error
	// Append adds a document with a generated id to a collection.
	Append(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Listen emits the full result of q now and after every change until the
	// subscription is cancelled.
	Listen(ctx context.Context, q Query, onSnapshot func([]Document)) (*api.Subscription, error)
}

// splitPath separates a document path into its collection and id.
func splitPath(path string) (string, string, error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", api.Invalid("%q is not a document path", path)
	}
	collection := path[:i]
	if strings.Count(collection, "/")%2 != 0 {
		return "", "", api.Invalid("%q is not a document path", path)
	}
	return collection, path[i+1:], nil
}

func validCollection(collection string) bool {
	return collection != "" && strings.Count(collection, "/")%2 == 0 && !strings.HasSuffix(collection, "/")
}
