package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/dharsanguruparan/efolder-express/internal/model"
)

// CreateDownload inserts a new download in the STARTED state.
func (s *Store) CreateDownload(ctx context.Context, requestID, fileNumber string) error {
	q := s.qb.Insert(downloadsTable).
		Columns(downloadColumns...).
		Values(requestID, fileNumber, s.now(), string(model.StateStarted))
	if _, err := s.exec(ctx, s.db, q); err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

// MarkDownloadErrored moves a STARTED download to ERRORED.
func (s *Store) MarkDownloadErrored(ctx context.Context, requestID string) error {
	return s.transitionDownload(ctx, s.db, requestID, model.StateErrored)
}

// MarkDownloadManifestDownloaded moves a STARTED download to
// MANIFEST_DOWNLOADED.
func (s *Store) MarkDownloadManifestDownloaded(ctx context.Context, requestID string) error {
	return s.transitionDownload(ctx, s.db, requestID, model.StateManifestDownloaded)
}

// RecordManifest inserts the manifest's documents and marks the download
// MANIFEST_DOWNLOADED in one transaction: either both happen or neither.
func (s *Store) RecordManifest(ctx context.Context, requestID string, docs []model.Document) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertDocuments(ctx, tx, docs); err != nil {
			return err
		}
		return s.transitionDownload(ctx, tx, requestID, model.StateManifestDownloaded)
	})
}

func (s *Store) transitionDownload(ctx context.Context, db execer, requestID string, to model.State) error {
	q := s.qb.Update(downloadsTable).
		Set("state", string(to)).
		Where(squirrel.Eq{"request_id": requestID, "state": string(model.StateStarted)})
	n, err := s.exec(ctx, db, q)
	if err != nil {
		return fmt.Errorf("update download %s: %w", requestID, err)
	}
	if n == 1 {
		return nil
	}
	current, err := s.downloadState(ctx, db, requestID)
	if err != nil {
		return err
	}
	return fmt.Errorf("download %s %s -> %s: %w", requestID, current, to, ErrInvalidTransition)
}

func (s *Store) downloadState(ctx context.Context, db execer, requestID string) (model.State, error) {
	query, args, err := s.qb.Select("state").From(downloadsTable).
		Where(squirrel.Eq{"request_id": requestID}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}
	var state string
	if err := db.QueryRowContext(ctx, query, args...).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("download %s: %w", requestID, ErrNotFound)
		}
		return "", fmt.Errorf("select download state: %w", err)
	}
	return model.State(state), nil
}

// GetDownload returns the download with all of its documents.
func (s *Store) GetDownload(ctx context.Context, requestID string) (*model.Download, error) {
	query, args, err := s.qb.Select(downloadColumns...).From(downloadsTable).
		Where(squirrel.Eq{"request_id": requestID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	dl, err := scanDownload(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("download %s: %w", requestID, ErrNotFound)
		}
		return nil, fmt.Errorf("select download: %w", err)
	}

	docs, err := s.queryDocuments(ctx, s.qb.Select(documentColumns...).From(documentsTable).
		Where(squirrel.Eq{"download_id": requestID}).
		OrderBy("filename", "id"))
	if err != nil {
		return nil, err
	}
	dl.Documents = docs
	return dl, nil
}

// GetPendingWork returns every STARTED download and every document that is
// neither fetched nor errored and belongs to a download whose manifest was
// recorded, using one query for each. Documents of a STARTED download are
// left to its manifest fetch.
func (s *Store) GetPendingWork(ctx context.Context) ([]model.Download, []model.Document, error) {
	query, args, err := s.qb.Select(downloadColumns...).From(downloadsTable).
		Where(squirrel.Eq{"state": string(model.StateStarted)}).
		OrderBy("started_at", "request_id").ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending downloads: %w", err)
	}
	var downloads []model.Download
	for rows.Next() {
		dl, err := scanDownload(rows)
		if err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan pending download: %w", err)
		}
		downloads = append(downloads, *dl)
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate pending downloads: %w", err)
	}

	docs, err := s.queryDocuments(ctx, s.qb.Select(documentColumns...).From(documentsTable).
		Where(squirrel.Eq{"content_location": nil, "errored": false}).
		Where("download_id IN (SELECT request_id FROM "+downloadsTable+" WHERE state = ?)", string(model.StateManifestDownloaded)).
		OrderBy("download_id", "filename", "id"))
	if err != nil {
		return nil, nil, err
	}
	return downloads, docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*model.Download, error) {
	var (
		dl        model.Download
		startedAt nullTime
		state     string
	)
	if err := row.Scan(&dl.RequestID, &dl.FileNumber, &startedAt, &state); err != nil {
		return nil, err
	}
	dl.StartedAt = startedAt.Time
	dl.State = model.State(state)
	dl.Documents = []model.Document{}
	return &dl, nil
}
