package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS documents (
        id              BIGSERIAL PRIMARY KEY,
        collection_name TEXT NOT NULL,
        doc             JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS documents_collection_id_idx
        ON documents (collection_name, id DESC);`

	insertDocumentSQL = `INSERT INTO documents (collection_name, doc)
    VALUES ($1, $2)
    RETURNING id;`

	listCollectionNamesSQL = `SELECT DISTINCT collection_name
    FROM documents
    ORDER BY collection_name;`

	dropCollectionSQL = `DELETE FROM documents WHERE collection_name = $1;`

	selectDocumentsSQL = `SELECT id, doc FROM documents WHERE collection_name = $1`
)

// dropGraceDelay is how long DropCollection pauses after warning, leaving a
// window for out-of-band operator cancellation.
const dropGraceDelay = 5 * time.Second

// Document is one stored record: the generated identifier plus its fields.
type Document struct {
	ID     int64
	Fields map[string]any
}

// Store is an append-only, document-oriented price store backed by Postgres
// JSONB. Every operation opens its own connection and releases it before
// returning; no connection is held across operations.
type Store struct {
	dsn        string
	normalizer *Normalizer
	logger     zerolog.Logger

	now       func() time.Time
	dropDelay time.Duration
}

// NewStore builds a Store for the given DSN.
func NewStore(dsn string, normalizer *Normalizer, logger zerolog.Logger) *Store {
	return &Store{
		dsn:        dsn,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "store").Logger(),
		now:        time.Now,
		dropDelay:  dropGraceDelay,
	}
}

func (s *Store) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the documents table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// FindMany normalizes the raw query and returns the matching documents of a
// collection, reverse insertion order by default. A missing collection name
// degrades to an empty result with a warning so callers see "no data"
// instead of a hard failure.
func (s *Store) FindMany(ctx context.Context, collection string, raw map[string]any, sort Sort) ([]Document, error) {
	if collection == "" {
		s.logger.Warn().Msg("collection name is required; returning no documents")
		return []Document{}, nil
	}

	query, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	sql := selectDocumentsSQL
	args := []any{collection}

	if query.ID != nil {
		args = append(args, *query.ID)
		sql += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if len(query.Filter) > 0 {
		encoded, err := json.Marshal(query.Filter)
		if err != nil {
			return nil, fmt.Errorf("encode query filter: %w", err)
		}
		args = append(args, encoded)
		sql += fmt.Sprintf(" AND doc @> $%d", len(args))
	}

	if sort == SortOldestFirst {
		sql += " ORDER BY id ASC"
	} else {
		sql += " ORDER BY id DESC"
	}
	if query.Skip > 0 {
		args = append(args, query.Skip)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query collection %q: %w", collection, err)
	}
	defer rows.Close()

	documents := make([]Document, 0)
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		documents = append(documents, Document{ID: id, Fields: fields})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return documents, nil
}

// InsertOne appends a document to a collection and returns the generated
// identifier. Unless suppressed, documents without a timestamp field are
// stamped with the current time in the fixed store format. Documents are
// never mutated after insertion.
func (s *Store) InsertOne(ctx context.Context, collection string, document map[string]any, suppressTimestamp bool) (int64, error) {
	if collection == "" {
		s.logger.Warn().Msg("collection name is required; document not persisted")
		return 0, ErrMissingCollectionName
	}
	if len(document) == 0 {
		s.logger.Warn().Str("collection", collection).Msg("document is required; nothing persisted")
		return 0, ErrEmptyDocument
	}

	encoded, err := json.Marshal(s.stampDocument(document, suppressTimestamp))
	if err != nil {
		return 0, fmt.Errorf("encode document: %w", err)
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	var id int64
	if err := conn.QueryRow(ctx, insertDocumentSQL, collection, encoded).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %q: %w", collection, err)
	}
	return id, nil
}

// ListCollectionNames returns the names of all collections holding at least
// one document.
func (s *Store) ListCollectionNames(ctx context.Context) ([]string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, listCollectionNamesSQL)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return names, nil
}

// DropCollection deletes every document of a collection. Destructive and
// irreversible; it warns loudly, then pauses so an operator can still abort
// the process before anything is deleted.
func (s *Store) DropCollection(ctx context.Context, collection string) (int64, error) {
	if collection == "" {
		return 0, ErrMissingCollectionName
	}

	s.logger.Warn().
		Str("collection", collection).
		Dur("grace", s.dropDelay).
		Msg("dropping collection: all documents will be lost and this is not reversible; starting after grace period")

	timer := time.NewTimer(s.dropDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return 0, ctx.Err()
	case <-timer.C:
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	tag, err := conn.Exec(ctx, dropCollectionSQL, collection)
	if err != nil {
		return 0, fmt.Errorf("drop collection %q: %w", collection, err)
	}

	s.logger.Info().
		Str("collection", collection).
		Int64("deleted", tag.RowsAffected()).
		Msg("collection dropped")
	return tag.RowsAffected(), nil
}

// stampDocument copies the document and, unless suppressed, stamps it with
// the current time in the fixed store format. A preexisting timestamp field
// is never overwritten.
func (s *Store) stampDocument(document map[string]any, suppressTimestamp bool) map[string]any {
	fields := make(map[string]any, len(document)+1)
	for key, value := range document {
		fields[key] = value
	}
	if !suppressTimestamp {
		if _, ok := fields["timestamp"]; !ok {
			fields["timestamp"] = FormatTimestamp(s.now())
		}
	}
	return fields
}

func decodeFields(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
