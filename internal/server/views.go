package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dharsanguruparan/efolder-express/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type documentView struct {
	Filename   string     `json:"filename"`
	DocType    string     `json:"docType"`
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
	Status     string     `json:"status"`
}

// statusView is what the status page and status.json show for a download.
type statusView struct {
	RequestID        string         `json:"requestId"`
	FileNumber       string         `json:"fileNumber"`
	State            model.State    `json:"state"`
	StartedAt        time.Time      `json:"startedAt"`
	HasManifest      bool           `json:"hasManifest"`
	Errored          bool           `json:"errored"`
	Completed        bool           `json:"completed"`
	PercentCompleted int            `json:"percentCompleted"`
	Total            int            `json:"total"`
	Resolved         int            `json:"resolved"`
	Failed           int            `json:"failed"`
	Documents        []documentView `json:"documents"`
}

func newStatusView(dl *model.Download) statusView {
	v := statusView{
		RequestID:        dl.RequestID,
		FileNumber:       dl.FileNumber,
		State:            dl.State,
		StartedAt:        dl.StartedAt,
		HasManifest:      dl.HasManifest(),
		Errored:          dl.Errored(),
		Completed:        dl.Completed(),
		PercentCompleted: dl.PercentCompleted(),
		Total:            len(dl.Documents),
		Resolved:         dl.ResolvedCount(),
		Failed:           dl.ErroredCount(),
		Documents:        make([]documentView, len(dl.Documents)),
	}
	for i := range dl.Documents {
		doc := &dl.Documents[i]
		v.Documents[i] = documentView{
			Filename:   doc.Filename,
			DocType:    doc.DocType,
			ReceivedAt: doc.ReceivedAt,
			Status:     doc.Status(),
		}
	}
	return v
}

// Refreshing reports whether the page should reload itself. An empty
// manifest never completes, so it stops refreshing too.
func (v statusView) Refreshing() bool {
	if v.HasManifest && v.Total == 0 {
		return false
	}
	return !v.Completed && !v.Errored
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template failed",
			slog.String("template", name),
			slog.String("error", err.Error()))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
