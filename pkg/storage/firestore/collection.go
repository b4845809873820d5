package firestore

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ToFirestoreFunc[T any] func(*T) map[string]interface{}
type FromFirestoreFunc[T any] func(map[string]interface{}) *T

type Collection[T any] struct {
	Ref           *firestore.CollectionRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{
		Ref:           c.Ref.Doc(id),
		ToFirestore:   c.ToFirestore,
		FromFirestore: c.FromFirestore,
	}
}

func (c *Collection[T]) NewDoc() *DocumentRef[T] {
	return &DocumentRef[T]{
		Ref:           c.Ref.NewDoc(),
		ToFirestore:   c.ToFirestore,
		FromFirestore: c.FromFirestore,
	}
}

// Query runs a shaped query against the collection and converts the results.
// The shape func receives the base query and returns the narrowed one.
func (c *Collection[T]) Query(ctx context.Context, shape func(firestore.Query) firestore.Query) ([]*T, error) {
	q := shape(c.Ref.Query)
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*T
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c.FromFirestore(snap.Data()))
	}
	return out, nil
}

type DocumentRef[T any] struct {
	Ref           *firestore.DocumentRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	return d.FromFirestore(snap.Data()), nil
}

// Exists reports whether the document is present without converting it.
func (d *DocumentRef[T]) Exists(ctx context.Context) (bool, error) {
	snap, err := d.Ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return snap.Exists(), nil
}

func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	m := d.ToFirestore(data)
	_, err := d.Ref.Set(ctx, m, firestore.MergeAll)
	return err
}

// Update applies partial field updates. Keys must match the stored
// snake_case fields; a dotted key like "integrations.fitbit.access_token"
// addresses that nested leaf, leaving its siblings untouched.
func (d *DocumentRef[T]) Update(ctx context.Context, updates map[string]interface{}) error {
	_, err := d.Ref.Update(ctx, UpdatesFromMap(updates))
	return err
}

// UpdatesFromMap converts a partial-update map into field updates in
// deterministic key order. Dotted keys stay intact as field paths; passing
// them through Set would create a single top-level field with a literal
// dotted name instead.
func UpdatesFromMap(m map[string]interface{}) []firestore.Update {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(m))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: m[k]})
	}
	return updates
}
