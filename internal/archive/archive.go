// Package archive assembles a completed download into a zip: every fetched
// document, decrypted, plus a README describing the whole manifest.
package archive

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/dharsanguruparan/efolder-express/internal/encryption"
	"github.com/dharsanguruparan/efolder-express/internal/model"
	pdfutil "github.com/dharsanguruparan/efolder-express/internal/pdf"
)

// ErrIncomplete is returned when asked to archive a download that still has
// pending documents. Callers must check Completed first.
var ErrIncomplete = errors.New("archive: download is not complete")

//go:embed templates/readme.txt.tmpl
var templateFS embed.FS

var readmeTemplate = template.Must(template.ParseFS(templateFS, "templates/readme.txt.tmpl"))

// BlobReader reads encrypted document contents.
type BlobReader interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// TypeLabels resolves numeric document types to descriptions.
type TypeLabels interface {
	Wait(ctx context.Context) (map[int]string, error)
}

// Builder writes download archives.
type Builder struct {
	blobs BlobReader
	gate  *encryption.Gate
	types TypeLabels
}

// New constructs a Builder.
func New(blobs BlobReader, gate *encryption.Gate, types TypeLabels) *Builder {
	return &Builder{blobs: blobs, gate: gate, types: types}
}

// Filename is the name offered to browsers for dl's archive.
func Filename(dl *model.Download) string {
	return dl.FileNumber + "-eFolder.zip"
}

type readmeEntry struct {
	Name       string
	DocumentID string
	Type       string
	Received   string
	Source     string
	Status     string
	Pages      int
}

type readmeData struct {
	FileNumber string
	RequestID  string
	StartedAt  string
	Total      int
	Fetched    int
	Failed     int
	Entries    []readmeEntry
	Failures   []readmeEntry
}

// Write streams the archive for dl into w. It waits for the document type
// table before writing anything.
func (b *Builder) Write(ctx context.Context, dl *model.Download, w io.Writer) error {
	if !dl.Completed() {
		return ErrIncomplete
	}
	types, err := b.types.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for document types: %w", err)
	}

	dir := dl.FileNumber + "-eFolder/"
	zw := zip.NewWriter(w)
	names := newNameSet()
	data := readmeData{
		FileNumber: dl.FileNumber,
		RequestID:  dl.RequestID,
		StartedAt:  dl.StartedAt.UTC().Format(time.RFC1123),
		Total:      len(dl.Documents),
	}

	for i := range dl.Documents {
		doc := &dl.Documents[i]
		entry := readmeEntry{
			Name:       names.claim(doc),
			DocumentID: doc.DocumentID,
			Type:       typeLabel(types, doc.DocType),
			Received:   "unknown",
			Source:     "unknown",
			Status:     "ok",
		}
		if doc.ReceivedAt != nil {
			entry.Received = doc.ReceivedAt.Format("2006-01-02")
		}
		if doc.Source != nil && *doc.Source != "" {
			entry.Source = *doc.Source
		}

		if !doc.Fetched() {
			entry.Status = "FAILED"
			data.Failed++
			data.Entries = append(data.Entries, entry)
			data.Failures = append(data.Failures, entry)
			continue
		}

		contents, err := b.contents(ctx, doc)
		if err != nil {
			return err
		}
		if pdfutil.IsPDF(contents) {
			if pages, err := pdfutil.PageCount(contents); err == nil {
				entry.Pages = pages
			}
		}
		header := &zip.FileHeader{Name: dir + entry.Name, Method: zip.Deflate}
		if doc.ReceivedAt != nil {
			header.Modified = *doc.ReceivedAt
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", entry.Name, err)
		}
		if _, err := fw.Write(contents); err != nil {
			return fmt.Errorf("write zip entry %s: %w", entry.Name, err)
		}
		data.Fetched++
		data.Entries = append(data.Entries, entry)
	}

	var readme bytes.Buffer
	if err := readmeTemplate.Execute(&readme, data); err != nil {
		return fmt.Errorf("render readme: %w", err)
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: dir + "README.txt", Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return fmt.Errorf("create readme entry: %w", err)
	}
	if _, err := fw.Write(readme.Bytes()); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// BuildFile writes the archive to a new file in dir and returns its path.
// The caller owns the file.
func (b *Builder) BuildFile(ctx context.Context, dl *model.Download, dir string) (string, error) {
	if !dl.Completed() {
		return "", ErrIncomplete
	}
	f, err := os.CreateTemp(dir, dl.FileNumber+"-eFolder-*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	if err := b.Write(ctx, dl, f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close archive file: %w", err)
	}
	return f.Name(), nil
}

func (b *Builder) contents(ctx context.Context, doc *model.Document) ([]byte, error) {
	token, err := b.blobs.Get(ctx, *doc.ContentLocation)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}
	plain, err := b.gate.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("decrypt document %s: %w", doc.ID, err)
	}
	return plain, nil
}

func typeLabel(types map[int]string, docType string) string {
	if id, err := strconv.Atoi(docType); err == nil {
		if label, ok := types[id]; ok {
			return label
		}
	}
	if docType == "" {
		return "unknown"
	}
	return docType
}

// nameSet hands out unique, flat entry names.
type nameSet map[string]bool

func newNameSet() nameSet {
	return nameSet{"README.txt": true}
}

func (s nameSet) claim(doc *model.Document) string {
	name := path.Base(strings.ReplaceAll(doc.Filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		name = doc.DocumentID
	}
	if !s[name] {
		s[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !s[candidate] {
			s[candidate] = true
			return candidate
		}
	}
}
