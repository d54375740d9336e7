package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"momoimport/internal/progress"
	"momoimport/internal/record"
)

type fakeRepo struct {
	mu       sync.Mutex
	txs      map[string]record.Transaction
	sessions map[string]*record.Session
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		txs:      make(map[string]record.Transaction),
		sessions: make(map[string]*record.Session),
	}
}

func (f *fakeRepo) InsertTransactions(_ context.Context, txs []record.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, tx := range txs {
		if _, ok := f.txs[tx.TransactionID]; ok {
			continue
		}
		f.txs[tx.TransactionID] = tx
		n++
	}
	return n, nil
}

func (f *fakeRepo) CountTransactions(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.txs)), nil
}

func (f *fakeRepo) CreateSession(_ context.Context, s *record.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) AddImportedRows(_ context.Context, id string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.ImportedRows += delta
	}
	return nil
}

func (f *fakeRepo) FinalizeSession(_ context.Context, s *record.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, id string) (*record.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (f *fakeRepo) Close() error                       { return nil }

func testServer(t *testing.T) (*Server, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewServer(Config{Addr: ":0"}, repo, progress.NewMemory()), repo
}

func csvBody(n int) string {
	var b strings.Builder
	b.WriteString("Transaction ID,Transaction Initiated Time,FRMSISDN,TOMSISDN,Original Amount\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "tx-%d,15/01/2025 13:45:00,2250700000001,2250700000002,100.50\n", i)
	}
	return b.String()
}

func multipartUpload(t *testing.T, target, fileName, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestImportMultipart(t *testing.T) {
	t.Parallel()

	srv, repo := testServer(t)
	req := multipartUpload(t, "/import/standard", "jan.csv", csvBody(5))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["totalRows"] != float64(5) || body["insertedTransactions"] != float64(5) {
		t.Errorf("body = %v", body)
	}
	if body["importSessionId"] == "" {
		t.Error("no session id in response")
	}
	if body["finalTransactions"] != float64(5) || body["newTransactionsAdded"] != float64(5) {
		t.Errorf("store summary wrong: %v", body)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(repo.sessions))
	}
}

func TestImportReimportReportsDuplicates(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	for i := 0; i < 2; i++ {
		req := multipartUpload(t, "/import/standard", "jan.csv", csvBody(4))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("run %d status = %d, body %s", i, rec.Code, rec.Body)
		}
		if i == 1 {
			body := decodeBody(t, rec)
			if body["duplicatesIgnored"] != float64(4) || body["insertedTransactions"] != float64(0) {
				t.Errorf("second run body = %v", body)
			}
			if body["existingTransactions"] != float64(4) {
				t.Errorf("existingTransactions = %v, want 4", body["existingTransactions"])
			}
		}
	}
}

func TestImportJSONRows(t *testing.T) {
	t.Parallel()

	// Any Content-Type whose media type is application/json must reach the
	// JSON branch, whatever its parameter spelling.
	contentTypes := []string{
		"application/json",
		"application/json; charset=utf-8",
		"application/json;charset=utf-8",
		"application/json; charset=UTF-8; boundary=x",
	}
	for i, ct := range contentTypes {
		ct := ct
		i := i
		t.Run(ct, func(t *testing.T) {
			t.Parallel()

			srv, _ := testServer(t)
			payload := fmt.Sprintf(`{"rows":[{"Transaction ID":"tx-%d","Transaction Initiated Time":"15/01/2025 13:45:00","FRMSISDN":"a","TOMSISDN":"b","Original Amount":"100"}],"fileName":"body.json"}`, i)

			req := httptest.NewRequest(http.MethodPost, "/import/standard", strings.NewReader(payload))
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			body := decodeBody(t, rec)
			if body["insertedTransactions"] != float64(1) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestImportUnknownMode(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	req := multipartUpload(t, "/import/warp", "jan.csv", csvBody(1))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] == nil || body["availableModes"] == nil {
		t.Errorf("body = %v", body)
	}
}

func TestImportMissingColumns(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	req := multipartUpload(t, "/import/standard", "jan.csv", "foo,bar\n1,2\n")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	cols, ok := body["availableColumns"].([]any)
	if !ok || len(cols) != 2 {
		t.Errorf("availableColumns = %v", body["availableColumns"])
	}
	if body["sampleRow"] == nil {
		t.Errorf("sampleRow missing: %v", body)
	}
}

func TestImportMissingFilePart(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import/standard", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAsyncImportAndPolling(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	req := multipartUpload(t, "/import/async", "jan.csv", csvBody(3))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	id, _ := decodeBody(t, rec)["importId"].(string)
	if id == "" {
		t.Fatal("no importId in response")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		pollRec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(pollRec, httptest.NewRequest(http.MethodGet, "/import/progress?importId="+id, nil))
		if pollRec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", pollRec.Code)
		}
		snap := decodeBody(t, pollRec)
		switch snap["status"] {
		case "completed":
			if snap["progress"] != float64(100) {
				t.Errorf("progress = %v", snap["progress"])
			}
			return
		case "error":
			t.Fatalf("import failed: %v", snap["error"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("import %s never completed: %v", id, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProgressEndpointValidation(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/progress", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing importId: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/progress?importId=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown importId: status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
