package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/dharsanguruparan/efolder-express/internal/model"
)

// CreateDocuments bulk inserts docs in one transaction. An empty slice is a
// no-op.
func (s *Store) CreateDocuments(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		return s.insertDocuments(ctx, tx, docs)
	})
}

func (s *Store) insertDocuments(ctx context.Context, db execer, docs []model.Document) error {
	for start := 0; start < len(docs); start += insertChunk {
		end := min(start+insertChunk, len(docs))
		q := s.qb.Insert(documentsTable).Columns(documentColumns...)
		for _, doc := range docs[start:end] {
			q = q.Values(
				doc.ID, doc.DownloadID, doc.DocumentID, doc.DocType, doc.Filename,
				dateOnly(doc.ReceivedAt), doc.Source, doc.ContentLocation, doc.Errored,
			)
		}
		if _, err := s.exec(ctx, db, q); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
	}
	return nil
}

// MarkDocumentErrored records a failed fetch on a pending document.
func (s *Store) MarkDocumentErrored(ctx context.Context, id string) error {
	return s.resolveDocument(ctx, id, s.qb.Update(documentsTable).Set("errored", true))
}

// SetDocumentContentLocation records where a pending document's encrypted
// contents were stored.
func (s *Store) SetDocumentContentLocation(ctx context.Context, id, location string) error {
	return s.resolveDocument(ctx, id, s.qb.Update(documentsTable).Set("content_location", location))
}

// resolveDocument applies update only while the document is pending, which
// keeps resolved rows immutable.
func (s *Store) resolveDocument(ctx context.Context, id string, update squirrel.UpdateBuilder) error {
	q := update.Where(squirrel.Eq{"id": id, "content_location": nil, "errored": false})
	n, err := s.exec(ctx, s.db, q)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	query, args, err := s.qb.Select("COUNT(*)").From(documentsTable).
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("select document: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("document %s already resolved: %w", id, ErrInvalidTransition)
}

func (s *Store) queryDocuments(ctx context.Context, b squirrel.SelectBuilder) ([]model.Document, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var (
			doc        model.Document
			receivedAt nullTime
			source     sql.NullString
			location   sql.NullString
		)
		if err := rows.Scan(
			&doc.ID, &doc.DownloadID, &doc.DocumentID, &doc.DocType, &doc.Filename,
			&receivedAt, &source, &location, &doc.Errored,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ReceivedAt = receivedAt.ptr()
		if source.Valid {
			v := source.String
			doc.Source = &v
		}
		if location.Valid {
			v := location.String
			doc.ContentLocation = &v
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
