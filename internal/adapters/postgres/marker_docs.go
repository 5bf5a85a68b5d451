package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

// MarkerDocs implements ports.DocumentStore on a jsonb documents table.
type MarkerDocs struct {
	db *DB
}

// NewMarkerDocs creates a new MarkerDocs.
func NewMarkerDocs(db *DB) *MarkerDocs {
	return &MarkerDocs{db: db}
}

// ReserveID allocates a random document id. Nothing is written until Write.
func (r *MarkerDocs) ReserveID(ctx context.Context, collection string) (ports.DocumentRef, error) {
	return ports.DocumentRef{Collection: collection, ID: uuid.NewString()}, nil
}

// Write stores the whole document, replacing any previous version.
func (r *MarkerDocs) Write(ctx context.Context, ref ports.DocumentRef, doc domain.MarkerDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()
	`, ref.Collection, ref.ID, string(data))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return nil
}

// ListAll returns every document of a collection, oldest first.
func (r *MarkerDocs) ListAll(ctx context.Context, collection string) ([]ports.DocumentSnapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, data FROM documents
		WHERE collection = $1
		ORDER BY created_at, id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []ports.DocumentSnapshot
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc domain.MarkerDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, ports.DocumentSnapshot{ID: id, Data: doc})
	}
	return out, rows.Err()
}

// AppendToArrayFields appends each value to its array field in one UPDATE.
// Missing arrays start empty. Concurrent appends are serialized by the row lock.
func (r *MarkerDocs) AppendToArrayFields(ctx context.Context, ref ports.DocumentRef, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	query, args := appendQuery(ref, values)

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("append %s/%s: %w", ref.Collection, ref.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append %s/%s: %w", ref.Collection, ref.ID, domain.ErrMarkerNotFound)
	}
	return nil
}

// appendQuery nests one jsonb_set per field. Field names travel as
// parameters, never as SQL text.
func appendQuery(ref ports.DocumentRef, values map[string]string) (string, []any) {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := []any{ref.Collection, ref.ID}
	expr := "data"
	for _, f := range fields {
		args = append(args, []string{f}, f, values[f])
		n := len(args)
		expr = fmt.Sprintf(
			"jsonb_set(%s, $%d::text[], COALESCE(data->$%d::text, '[]'::jsonb) || to_jsonb($%d::text))",
			expr, n-2, n-1, n,
		)
	}

	var b strings.Builder
	b.WriteString("UPDATE documents SET data = ")
	b.WriteString(expr)
	b.WriteString(", updated_at = now() WHERE collection = $1 AND id = $2")
	return b.String(), args
}
