package ports

import (
	"context"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// DocumentRef addresses one document in a collection.
type DocumentRef struct {
	Collection string
	ID         string
}

// DocumentSnapshot is one stored document as returned by ListAll.
type DocumentSnapshot struct {
	ID   string
	Data domain.MarkerDocument
}

// DocumentStore persists marker documents shared by all observers.
type DocumentStore interface {
	// ReserveID allocates a new document identity without writing anything.
	ReserveID(ctx context.Context, collection string) (DocumentRef, error)
	Write(ctx context.Context, ref DocumentRef, doc domain.MarkerDocument) error
	ListAll(ctx context.Context, collection string) ([]DocumentSnapshot, error)
	// AppendToArrayFields appends one value to each named array field in a
	// single atomic update. It must append, never overwrite.
	AppendToArrayFields(ctx context.Context, ref DocumentRef, values map[string]string) error
}

// BlobStore stores photo bytes and hands out durable URLs for them.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// PhotoSource reads the bytes behind a local photo reference.
type PhotoSource interface {
	Read(ctx context.Context, ref string) (data []byte, contentType string, err error)
}
