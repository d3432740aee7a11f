// Package orchestrator drives a download through its lifecycle: accept the
// request, fetch the manifest, fetch every document, and re-enqueue whatever
// was left pending when the process last stopped.
//
// Every step is a task run by a queue.Dispatcher. Steps persist their result
// before enqueueing follow-up work, so a crash at any point leaves the store
// describing exactly the work that remains.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/efolder-express/internal/encryption"
	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/metrics"
	"github.com/dharsanguruparan/efolder-express/internal/model"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
	"github.com/dharsanguruparan/efolder-express/internal/records"
	"github.com/dharsanguruparan/efolder-express/internal/repository"
)

// ErrEmptyFileNumber rejects a request whose file number is blank once
// normalized.
var ErrEmptyFileNumber = errors.New("file number is required")

// Store is the durable state the orchestrator reads and advances.
type Store interface {
	CreateDownload(ctx context.Context, requestID, fileNumber string) error
	MarkDownloadErrored(ctx context.Context, requestID string) error
	RecordManifest(ctx context.Context, requestID string, docs []model.Document) error
	MarkDocumentErrored(ctx context.Context, id string) error
	SetDocumentContentLocation(ctx context.Context, id, location string) error
	GetPendingWork(ctx context.Context) ([]model.Download, []model.Document, error)
}

// BlobStore keeps encrypted document contents.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, location string) error
}

// Orchestrator wires the store, the records system, the blob store and the
// dispatcher together.
type Orchestrator struct {
	store      Store
	blobs      BlobStore
	records    records.Client
	gate       *encryption.Gate
	dispatcher queue.Dispatcher
	events     logging.Events
	newID      func() string
}

// New constructs an Orchestrator.
func New(store Store, blobs BlobStore, client records.Client, gate *encryption.Gate, dispatcher queue.Dispatcher, events logging.Events) *Orchestrator {
	return &Orchestrator{
		store:      store,
		blobs:      blobs,
		records:    client,
		gate:       gate,
		dispatcher: dispatcher,
		events:     events,
		newID:      uuid.NewString,
	}
}

// BeginDownload records a new download and schedules its manifest fetch. It
// returns before any call to the records system.
func (o *Orchestrator) BeginDownload(ctx context.Context, fileNumber string) (string, error) {
	fileNumber = model.NormalizeFileNumber(fileNumber)
	if fileNumber == "" {
		return "", ErrEmptyFileNumber
	}
	requestID := o.newID()
	if err := o.store.CreateDownload(ctx, requestID, fileNumber); err != nil {
		return "", fmt.Errorf("create download: %w", err)
	}
	task, err := queue.NewFetchManifestTask(queue.ManifestPayload{RequestID: requestID, FileNumber: fileNumber})
	if err != nil {
		return "", err
	}
	if err := o.dispatcher.Enqueue(ctx, task); err != nil {
		// The row stays STARTED, so recovery schedules it on the next start.
		return "", fmt.Errorf("enqueue manifest fetch: %w", err)
	}
	metrics.DownloadsStarted.Inc()
	o.events.Emit("download.start",
		slog.String(logging.FieldRequestID, requestID),
		slog.String(logging.FieldFileNumber, fileNumber))
	return requestID, nil
}

// FetchManifest lists the documents of a STARTED download. A records failure
// marks the download ERRORED. Otherwise the documents and the state change
// are committed together and one document fetch is enqueued per document.
func (o *Orchestrator) FetchManifest(ctx context.Context, requestID, fileNumber string) error {
	events := o.events.With(
		slog.String(logging.FieldRequestID, requestID),
		slog.String(logging.FieldFileNumber, fileNumber),
	)
	events.Emit("list_documents.start")

	timer := events.With(slog.String(logging.FieldProcess, "ListDocuments")).Time("process.spawn")
	metas, err := o.records.ListDocuments(ctx, fileNumber)
	timer.Stop()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		events.Error("list_documents.error", err)
		if err := o.store.MarkDownloadErrored(ctx, requestID); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				events.Emit("list_documents.already_resolved")
				return nil
			}
			return fmt.Errorf("mark download errored: %w", err)
		}
		metrics.ManifestsResolved.WithLabelValues(string(model.StateErrored)).Inc()
		return nil
	}

	docs := make([]model.Document, len(metas))
	for i, meta := range metas {
		docs[i] = model.Document{
			ID:         o.newID(),
			DownloadID: requestID,
			DocumentID: meta.DocumentID,
			DocType:    meta.DocType,
			Filename:   meta.Filename,
			ReceivedAt: meta.ReceivedAt,
			Source:     meta.Source,
		}
	}
	if err := o.store.RecordManifest(ctx, requestID, docs); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// A duplicate task already recorded the manifest and scheduled
			// its documents.
			events.Emit("list_documents.already_resolved")
			return nil
		}
		return fmt.Errorf("record manifest: %w", err)
	}
	metrics.ManifestsResolved.WithLabelValues(string(model.StateManifestDownloaded)).Inc()
	events.Emit("list_documents.success", slog.Int("documents", len(docs)))

	for _, doc := range docs {
		task, err := queue.NewFetchDocumentTask(queue.DocumentPayload{
			ID:         doc.ID,
			DownloadID: doc.DownloadID,
			DocumentID: doc.DocumentID,
			FileNumber: fileNumber,
		})
		if err != nil {
			return err
		}
		if err := o.dispatcher.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// FetchDocument downloads one pending document, encrypts it and stores it
// under a fresh location. A records failure marks the document errored.
func (o *Orchestrator) FetchDocument(ctx context.Context, p queue.DocumentPayload) error {
	events := o.events.With(
		slog.String(logging.FieldRequestID, p.DownloadID),
		slog.String(logging.FieldDocumentID, p.DocumentID),
	)
	if p.FileNumber != "" {
		events = events.With(slog.String(logging.FieldFileNumber, p.FileNumber))
	}
	events.Emit("get_document.start")

	timer := events.With(slog.String(logging.FieldProcess, "FetchDocumentContents")).Time("process.spawn")
	contents, err := o.records.FetchDocumentContents(ctx, p.DocumentID)
	timer.Stop()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch document: %w", err)
		}
		events.Error("get_document.error", err)
		if err := o.store.MarkDocumentErrored(ctx, p.ID); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				events.Emit("get_document.already_resolved")
				return nil
			}
			return fmt.Errorf("mark document errored: %w", err)
		}
		metrics.DocumentsResolved.WithLabelValues("errored").Inc()
		return nil
	}

	token, err := o.gate.Encrypt(contents)
	if err != nil {
		return fmt.Errorf("encrypt document %s: %w", p.ID, err)
	}
	location, err := o.blobs.Put(ctx, token)
	if err != nil {
		return fmt.Errorf("store document %s: %w", p.ID, err)
	}
	if err := o.store.SetDocumentContentLocation(ctx, p.ID, location); err != nil {
		// Nothing references the new blob.
		if derr := o.blobs.Delete(context.WithoutCancel(ctx), location); derr != nil {
			events.Error("get_document.orphaned_blob", derr, slog.String("location", location))
		}
		if errors.Is(err, repository.ErrInvalidTransition) {
			events.Emit("get_document.already_resolved")
			return nil
		}
		return fmt.Errorf("set content location: %w", err)
	}
	metrics.DocumentsResolved.WithLabelValues("fetched").Inc()
	events.Emit("get_document.success", slog.Int("bytes", len(contents)))
	return nil
}

// RecoverPendingWork re-enqueues every unfinished unit of work: a manifest
// fetch per STARTED download and a document fetch per pending document.
func (o *Orchestrator) RecoverPendingWork(ctx context.Context) (manifests, documents int, err error) {
	o.events.Emit("recover.start")
	downloads, docs, err := o.store.GetPendingWork(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load pending work: %w", err)
	}
	for _, dl := range downloads {
		task, err := queue.NewFetchManifestTask(queue.ManifestPayload{RequestID: dl.RequestID, FileNumber: dl.FileNumber})
		if err != nil {
			return manifests, documents, err
		}
		if err := o.dispatcher.Enqueue(ctx, task); err != nil {
			return manifests, documents, fmt.Errorf("enqueue manifest fetch %s: %w", dl.RequestID, err)
		}
		manifests++
	}
	for _, doc := range docs {
		task, err := queue.NewFetchDocumentTask(queue.DocumentPayload{
			ID:         doc.ID,
			DownloadID: doc.DownloadID,
			DocumentID: doc.DocumentID,
		})
		if err != nil {
			return manifests, documents, err
		}
		if err := o.dispatcher.Enqueue(ctx, task); err != nil {
			return manifests, documents, fmt.Errorf("enqueue document %s: %w", doc.ID, err)
		}
		documents++
	}
	o.events.Emit("recover.done",
		slog.Int("manifests", manifests),
		slog.Int("documents", documents))
	return manifests, documents, nil
}

// ProcessTask runs one dispatched task.
func (o *Orchestrator) ProcessTask(ctx context.Context, task queue.Task) error {
	switch task.Type {
	case queue.FetchManifestTask:
		var p queue.ManifestPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return o.FetchManifest(ctx, p.RequestID, p.FileNumber)
	case queue.FetchDocumentTask:
		var p queue.DocumentPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return o.FetchDocument(ctx, p)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}
