package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	pdfutil "github.com/dharsanguruparan/efolder-express/internal/pdf"
)

// Demo file numbers with fixed behaviour.
const (
	DemoFailingFileNumber = "000000000"
	demoFailingDocument   = "demo-failing"
)

var demoTypes = map[int]string{
	1:   "VA 21-526 Veterans Application for Compensation or Pension",
	73:  "Correspondence",
	356: "Medical Treatment Record - Government Facility",
}

// DemoClient is an in-process records system for local runs. Every file
// number yields the same manifest; DemoFailingFileNumber fails the listing
// and one document per manifest fails to fetch.
type DemoClient struct {
	// Delay is slept before each call to make progress visible in the UI.
	Delay time.Duration
}

func (d DemoClient) ListDocuments(ctx context.Context, fileNumber string) ([]DocumentMeta, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	if fileNumber == DemoFailingFileNumber {
		return nil, &TransportError{
			Op:       opListDocuments,
			Args:     []string{fileNumber},
			Stderr:   []byte("demo: no such file number"),
			ExitCode: 1,
		}
	}
	received := time.Date(2014, time.March, 12, 0, 0, 0, 0, time.UTC)
	source := "CUI"
	return []DocumentMeta{
		{DocumentID: "demo-1-" + fileNumber, DocType: "1", Filename: "application.pdf", ReceivedAt: &received, Source: &source},
		{DocumentID: "demo-2-" + fileNumber, DocType: "356", Filename: "treatment-record.pdf", ReceivedAt: &received},
		{DocumentID: "demo-3-" + fileNumber, DocType: "73", Filename: "letter.pdf"},
		{DocumentID: demoFailingDocument, DocType: "73", Filename: "unavailable.pdf"},
	}, nil
}

func (d DemoClient) FetchDocumentContents(ctx context.Context, documentID string) ([]byte, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	if documentID == demoFailingDocument {
		return nil, &TransportError{
			Op:       opFetchDocument,
			Args:     []string{documentID},
			Stderr:   []byte("demo: document unavailable"),
			ExitCode: 1,
		}
	}
	pages := 1 + len(documentID)%3
	texts := make([]string, pages)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s page %d", strings.ToUpper(documentID), i+1)
	}
	return pdfutil.Minimal(texts...), nil
}

func (d DemoClient) GetDocumentTypes(ctx context.Context) (map[int]string, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(demoTypes))
	for k, v := range demoTypes {
		out[k] = v
	}
	return out, nil
}

func (d DemoClient) wait(ctx context.Context) error {
	if d.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
