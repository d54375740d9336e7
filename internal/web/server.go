// Package web exposes the upload and progress HTTP surface of the import
// service. Handlers are thin: they pick a mode, acquire the file bytes, and
// delegate to the stream driver; every outcome is a single JSON document.
//
// Routes:
//
//	POST /import/{mode}     → run an import (multipart file or JSON rows)
//	GET  /import/progress   → poll an asynchronous import by importId
//	GET  /healthz           → liveness
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"

	"momoimport/internal/csvio"
	"momoimport/internal/importer"
	"momoimport/internal/progress"
	"momoimport/internal/store"
)

// Config controls server startup.
type Config struct {
	Addr string

	// CSV is applied to every upload (delimiter sniffing by default).
	CSV csvio.Options
}

// Server wires the HTTP mux over the repository and progress store.
type Server struct {
	cfg      Config
	repo     store.Repository
	progress progress.Store
	mux      *http.ServeMux
}

// NewServer constructs a Server with all routes registered.
func NewServer(cfg Config, repo store.Repository, prog progress.Store) *Server {
	s := &Server{
		cfg:      cfg,
		repo:     repo,
		progress: prog,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.cfg.Addr, s.mux)
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /import/{mode}", s.handleImport)
	s.mux.HandleFunc("GET /import/progress", s.handleProgress)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// importResponse is the 200 body shared by every synchronous mode.
type importResponse struct {
	Message              string `json:"message"`
	ImportSessionID      string `json:"importSessionId"`
	TotalRows            int64  `json:"totalRows"`
	ValidTransactions    int64  `json:"validTransactions"`
	InsertedTransactions int64  `json:"insertedTransactions"`
	ExistingTransactions int64  `json:"existingTransactions"`
	FinalTransactions    int64  `json:"finalTransactions"`
	NewTransactionsAdded int64  `json:"newTransactionsAdded"`
	DuplicatesIgnored    int64  `json:"duplicatesIgnored"`
}

// rowsRequest is the JSON alternative to a multipart upload: pre-parsed rows
// keyed by raw header.
type rowsRequest struct {
	Rows     []map[string]string `json:"rows"`
	FileName string              `json:"fileName"`
	FileSize int64               `json:"fileSize"`
	// Accepted for caller compatibility; the driver always creates its own
	// session.
	ImportSessionID string `json:"importSessionId"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	modeName := r.PathValue("mode")
	mode, ok := importer.Mode(modeName)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":          fmt.Sprintf("unknown import mode %q", modeName),
			"availableModes": importer.ModeNames(),
		})
		return
	}

	drv := &importer.Driver{Mode: mode, Repo: s.repo, Progress: s.progress, CSV: s.cfg.CSV}

	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
		s.importRows(w, r, drv)
		return
	}
	s.importFile(w, r, drv, modeName == "async")
}

func (s *Server) importFile(w http.ResponseWriter, r *http.Request, drv *importer.Driver, async bool) {
	if drv.Mode.MaxBytes > 0 {
		// Generous slack for multipart framing around the file part.
		r.Body = http.MaxBytesReader(w, r.Body, drv.Mode.MaxBytes+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing multipart field \"file\""})
		return
	}
	defer file.Close()

	if async {
		s.startAsync(w, drv, file, header.Filename, header.Size)
		return
	}

	res, err := drv.Run(r.Context(), file, header.Filename, header.Size)
	s.writeResult(w, r, res, err)
}

func (s *Server) importRows(w http.ResponseWriter, r *http.Request, drv *importer.Driver) {
	var req rowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}
	res, err := drv.RunRows(r.Context(), req.Rows, req.FileName, req.FileSize)
	s.writeResult(w, r, res, err)
}

// startAsync spools the upload to a temp file (the multipart buffers die
// with the request) and launches the background run.
func (s *Server) startAsync(w http.ResponseWriter, drv *importer.Driver, file io.Reader, fileName string, fileSize int64) {
	tmp, err := os.CreateTemp("", "momoimport-*.csv")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "import failed", "details": err.Error()})
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "import failed", "details": err.Error()})
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "import failed", "details": err.Error()})
		return
	}

	id := drv.StartAsync(tmp, fileName, fileSize, func() {
		tmp.Close()
		os.Remove(tmp.Name())
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":  "import started",
		"importId": id,
	})
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res *importer.Result, err error) {
	if err != nil {
		if ie, ok := importer.IsInputError(err); ok {
			body := map[string]any{"error": ie.Reason}
			if len(ie.AvailableColumns) > 0 {
				body["availableColumns"] = ie.AvailableColumns
			}
			if len(ie.SampleRow) > 0 {
				body["sampleRow"] = ie.SampleRow
			}
			writeJSON(w, http.StatusBadRequest, body)
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "import failed",
			"details": err.Error(),
		})
		return
	}

	final, cerr := s.repo.CountTransactions(r.Context())
	if cerr != nil {
		// The import itself succeeded; the summary is just less complete.
		log.Printf("web: counting transactions failed: %v", cerr)
	}

	writeJSON(w, http.StatusOK, importResponse{
		Message:              fmt.Sprintf("import %s", res.Status),
		ImportSessionID:      res.SessionID,
		TotalRows:            res.TotalRows,
		ValidTransactions:    res.ValidRows,
		InsertedTransactions: res.Inserted,
		ExistingTransactions: final - res.Inserted,
		FinalTransactions:    final,
		NewTransactionsAdded: res.Inserted,
		DuplicatesIgnored:    res.Duplicates,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("importId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "importId query parameter required"})
		return
	}
	snap, ok := s.progress.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("unknown import id %q", id)})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
