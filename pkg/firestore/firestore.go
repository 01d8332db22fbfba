// Package firestore provides a latch.Source implementation for Firestore
// documents using realtime listeners.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// Source watches a Firestore document holding a status document using
// realtime listeners.
type Source struct {
	client     *firestore.Client
	collection string
	document   string
	field      string
}

// Option configures a Source.
type Option func(*Source)

// WithField sets a specific field to extract from the document.
// If not set, the "data" field is extracted.
func WithField(field string) Option {
	return func(s *Source) {
		s.field = field
	}
}

// New creates a new Source for the given Firestore document.
func New(client *firestore.Client, collection, document string, opts ...Option) *Source {
	s := &Source{
		client:     client,
		collection: collection,
		document:   document,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching the Firestore document and returns a channel that
// emits the document's data whenever it changes. The current value is emitted
// immediately to support the initial mirror.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	docRef := s.client.Collection(s.collection).Doc(s.document)

	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := docRef.Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if !snap.Exists() {
				continue
			}

			field := s.field
			if field == "" {
				field = "data"
			}

			var value []byte
			data := snap.Data()
			if fieldValue, ok := data[field]; ok {
				if bytes, ok := fieldValue.([]byte); ok {
					value = bytes
				} else if str, ok := fieldValue.(string); ok {
					value = []byte(str)
				}
			}

			if value == nil {
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// CreateDocument is a helper to create a status document with the expected structure.
func CreateDocument(ctx context.Context, client *firestore.Client, collection, document string, data []byte) error {
	_, err := client.Collection(collection).Doc(document).Set(ctx, map[string]interface{}{
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// UpdateDocument is a helper to update a status document.
func UpdateDocument(ctx context.Context, client *firestore.Client, collection, document string, data []byte) error {
	_, err := client.Collection(collection).Doc(document).Update(ctx, []firestore.Update{
		{Path: "data", Value: data},
	})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}
