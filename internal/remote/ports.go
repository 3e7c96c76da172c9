package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gastos/internal/core"
)

// SchemaVersion is written with every remote document.
const SchemaVersion = "1.0"

var (
	// ErrUnavailable means the remote store could not be reached, was never
	// initialized, or the circuit breaker is open.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrPermissionDenied means the store rejected the call by access rules.
	ErrPermissionDenied = errors.New("remote store permission denied")
	// ErrRejected means the store refused the document itself, e.g. it is
	// too large. Writing the same document again cannot succeed.
	ErrRejected = errors.New("remote store rejected the document")
	// ErrDocumentNotFound is returned by adapters when the shared document
	// does not exist yet.
	ErrDocumentNotFound = errors.New("remote document not found")
)

// Document is the shared remote document: the whole collection plus the
// store-assigned write timestamp and the schema version.
type Document struct {
	Collection core.Collection
	UpdatedAt  time.Time
	Version    string
}

// Subscription is a live change-feed registration.
type Subscription interface {
	Close() error
}

// Ports for outbound adapters.
type (
	// DocumentStore reads and writes the single shared document.
	DocumentStore interface {
		Ping(ctx context.Context) error
		// Get returns ErrDocumentNotFound when the document is missing.
		Get(ctx context.Context) (Document, error)
		// Put replaces the document and returns it with the timestamp the
		// store assigned.
		Put(ctx context.Context, c core.Collection) (Document, error)
		// Watch calls fn with the current document and after every change.
		// A broken feed is reported through fn's error argument.
		Watch(ctx context.Context, fn func(Document, error)) (Subscription, error)
	}
)

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }

type wireDocument struct {
	core.Collection
	UpdatedAt string `json:"ultimaActualizacion"`
	Version   string `json:"version"`
}

// MarshalJSON writes the lists, "ultimaActualizacion" and "version" side by
// side, the layout shared clients read.
func (d Document) MarshalJSON() ([]byte, error) {
	c := d.Collection.Clone()
	c.Normalize()
	w := wireDocument{Collection: c, Version: d.Version}
	if !d.UpdatedAt.IsZero() {
		w.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	c, err := core.DecodeCollection(b)
	if err != nil {
		return err
	}
	var meta struct {
		UpdatedAt string `json:"ultimaActualizacion"`
		Version   string `json:"version"`
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return fmt.Errorf("decode document metadata: %w", err)
	}
	d.Collection = c
	d.Version = meta.Version
	d.UpdatedAt = time.Time{}
	if meta.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt)
		if err != nil {
			return fmt.Errorf("decode document timestamp: %w", err)
		}
		d.UpdatedAt = t
	}
	return nil
}
