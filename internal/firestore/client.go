// Package firestore is the production record store backend.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// Client wraps the Firestore client as a store.Store
type Client struct {
	Firestore *firestore.Client
	projectID string
}

var _ store.Store = (*Client)(nil)

// NewClient creates a new Firestore client. Application Default Credentials
// are used unless credsPath names a service account file.
func NewClient(ctx context.Context, projectID, credsPath string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// Insert stores data under a generated document id
func (c *Client) Insert(ctx context.Context, coll string, data domain.Fields) (string, error) {
	ref, _, err := c.Firestore.Collection(coll).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", coll, err)
	}
	return ref.ID, nil
}

// Upsert writes the document, merging per mergeFields (see store.ApplyMerge)
func (c *Client) Upsert(ctx context.Context, coll, id string, data domain.Fields, mergeFields ...string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	ref := c.Firestore.Collection(coll).Doc(id)
	if _, err := ref.Set(ctx, data, setOptions(data, mergeFields)...); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", coll, id, err)
	}
	return nil
}

// Get retrieves a document by id
func (c *Client) Get(ctx context.Context, coll, id string) (*store.Document, error) {
	doc, err := c.Firestore.Collection(coll).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s/%s: %w", coll, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", coll, id, err)
	}
	return &store.Document{ID: doc.Ref.ID, Data: doc.Data()}, nil
}

// Query returns documents matching every equality predicate
func (c *Client) Query(ctx context.Context, coll string, preds ...store.Predicate) ([]store.Document, error) {
	q := c.Firestore.Collection(coll).Query
	for _, p := range preds {
		q = q.Where(p.Field, "==", store.Normalize(p.Value))
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []store.Document
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", coll, err)
		}
		docs = append(docs, store.Document{ID: doc.Ref.ID, Data: doc.Data()})
	}
	return docs, nil
}

// Delete removes a document; Firestore treats a missing id as success
func (c *Client) Delete(ctx context.Context, coll, id string) error {
	if _, err := c.Firestore.Collection(coll).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", coll, id, err)
	}
	return nil
}

// BatchWrite commits ops in a single transaction
func (c *Client) BatchWrite(ctx context.Context, coll string, ops []store.Op) error {
	if err := store.CheckBatch(ops); err != nil {
		return err
	}
	col := c.Firestore.Collection(coll)
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, op := range ops {
			ref := col.Doc(op.ID)
			var err error
			switch op.Kind {
			case store.OpSet:
				err = tx.Set(ref, op.Data)
			case store.OpMerge:
				err = tx.Set(ref, op.Data, firestore.MergeAll)
			case store.OpDelete:
				err = tx.Delete(ref)
			default:
				err = fmt.Errorf("unknown op kind %s", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", op.Kind, op.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit %d ops to %s: %w", len(ops), coll, err)
	}
	return nil
}

// setOptions maps merge fields onto Firestore set options. Named fields
// absent from data are dropped since Firestore rejects them.
func setOptions(data domain.Fields, mergeFields []string) []firestore.SetOption {
	if len(mergeFields) == 0 {
		return nil
	}
	if len(mergeFields) == 1 && mergeFields[0] == store.MergeAll {
		return []firestore.SetOption{firestore.MergeAll}
	}
	var paths []firestore.FieldPath
	for _, f := range mergeFields {
		if _, ok := data[f]; ok {
			paths = append(paths, firestore.FieldPath{f})
		}
	}
	if len(paths) == 0 {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return []firestore.SetOption{firestore.Merge(paths...)}
}
