package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"messengerService/pkg/api"
)

type firestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore adapts a Firestore client to DocumentStore.
func NewFirestoreStore(client *firestore.Client) DocumentStore {
	return &firestoreStore{client: client}
}

func (f *firestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	ref := f.client.Doc(path)
	if ref == nil {
		return nil, api.Invalid("%q is not a document path", path)
	}
	return ref, nil
}

func (f *firestoreStore) ReadOne(ctx context.Context, path string) (*Document, error) {
	ref, err := f.doc(path)
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "read "+path)
	}
	return &Document{Id: snap.Ref.ID, Fields: snap.Data()}, nil
}

func (f *firestoreStore) UpsertMerge(ctx context.Context, path string, fields map[string]interface{}) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}

	if _, err := ref.Set(ctx, toFirestore(fields), firestore.MergeAll); err != nil {
		return classify(err, "merge "+path)
	}
	return nil
}

func (f *firestoreStore) Create(ctx context.Context, path string, fields map[string]interface{}) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}

	if _, err := ref.Create(ctx, toFirestore(fields)); err != nil {
		return classify(err, "create "+path)
	}
	return nil
}

func (f *firestoreStore) UpdateFields(ctx context.Context, path string, fields map[string]interface{}) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}

	updates := make([]firestore.Update, 0, len(fields))
	for key, value := range fields {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{key},
			Value:     toFirestore(value),
		})
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return classify(err, "update "+path)
	}
	return nil
}

func (f *firestoreStore) Append(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	ref := f.client.Collection(collection)
	if ref == nil {
		return "", api.Invalid("%q is not a collection path", collection)
	}

	docRef, _, err := ref.Add(ctx, toFirestore(fields))
	if err != nil {
		return "", classify(err, "append to "+collection)
	}
	return docRef.ID, nil
}

func (f *firestoreStore) Delete(ctx context.Context, path string) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}

	if _, err := ref.Delete(ctx); err != nil {
		return classify(err, "delete "+path)
	}
	return nil
}

func (f *firestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, err := f.build(q)
	if err != nil {
		return nil, err
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(err, "query "+q.Collection)
	}
	return documents(snaps), nil
}

func (f *firestoreStore) Listen(ctx context.Context, q Query, onSnapshot func([]Document)) (*api.Subscription, error) {
	query, err := f.build(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	iter := query.Snapshots(ctx)
	// Stop must not run concurrently with Next, so the listener goroutine owns
	// the iterator and cancelling only unblocks Next.
	subscription := api.NewSubscription(cancel)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				// Stop and cancellation surface as Canceled; both mean the
				// subscription already ended.
				if status.Code(err) == codes.Canceled || ctx.Err() != nil {
					subscription.Fail(ctx.Err())
				} else {
					subscription.Fail(classify(err, "listen to "+q.Collection))
				}
				return
			}

			snaps, err := snap.Documents.GetAll()
			if err != nil {
				subscription.Fail(classify(err, "listen to "+q.Collection))
				return
			}
			docs := documents(snaps)
			subscription.Deliver(func() { onSnapshot(docs) })
		}
	}()

	return subscription, nil
}

func (f *firestoreStore) build(q Query) (firestore.Query, error) {
	collection := f.client.Collection(q.Collection)
	if collection == nil {
		return firestore.Query{}, api.Invalid("%q is not a collection path", q.Collection)
	}

	query := collection.Query
	for _, filter := range q.Filters {
		query = query.Where(filter.Path, filter.Op, filter.Value)
	}
	for _, order := range q.Orders {
		direction := firestore.Asc
		if order.Desc {
			direction = firestore.Desc
		}
		path := order.Path
		if path == DocumentID {
			path = firestore.DocumentID
		}
		query = query.OrderBy(path, direction)
	}
	return query, nil
}

func documents(snaps []*firestore.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{Id: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs
}

// toFirestore swaps the ServerTimestamp sentinel for Firestore's own.
func toFirestore(value interface{}) interface{} {
	switch v := value.(type) {
	case serverTimestamp:
		return firestore.ServerTimestamp
	case map[string]interface{}:
		converted := make(map[string]interface{}, len(v))
		for key, inner := range v {
			converted[key] = toFirestore(inner)
		}
		return converted
	default:
		return v
	}
}

func classify(err error, action string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return api.ErrNotFound
	case codes.AlreadyExists:
		return api.ErrAlreadyExists
	}
	return api.Unavailable(err, action)
}
