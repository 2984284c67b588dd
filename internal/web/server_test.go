package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/pipeline"
	"github.com/valpere/dubtran/internal/prompt"
	"github.com/valpere/dubtran/internal/translator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStaticServer(t *testing.T, response string) *Server {
	t.Helper()
	builder, err := prompt.New(prompt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.New(translator.NewStaticService(response), builder, pipeline.Options{Logger: zerolog.Nop()})
	s, err := New(p, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_IndexShowsSample(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Sample JSON format") || !strings.Contains(body, "The price is $50 for this product.") {
		t.Errorf("sample not shown:\n%s", body)
	}
	if !strings.Contains(body, "No translation yet") {
		t.Error("expected empty stats sidebar")
	}
}

func TestServer_UploadTranslateDownload(t *testing.T) {
	s := newStaticServer(t, "[1] Namaste\n[3] Phir milenge")

	w := do(s, uploadRequest(t, "lines.json", `[{"text":"Hello"},{"text":"How are you"},{"text":"See you"}]`))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("upload: expected 303, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	if !strings.Contains(body, "Preview input data (lines.json)") || !strings.Contains(body, "How are you") {
		t.Errorf("preview missing:\n%s", body)
	}

	w = do(s, httptest.NewRequest(http.MethodPost, "/translate", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/results" {
		t.Fatalf("translate: expected redirect to /results, got %d %q", w.Code, w.Header().Get("Location"))
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/results", nil))
	body = w.Body.String()
	for _, want := range []string{"Namaste", "[Translation missing for: How are you]", "Phir milenge", "Warning: expected 3 translations but got 2"} {
		if !strings.Contains(body, want) {
			t.Errorf("results page missing %q", want)
		}
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/download/json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("download json: %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "hinglish_output.json") {
		t.Errorf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	items, err := batch.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Namaste", "[Translation missing for: How are you]", "Phir milenge"}
	if diff := cmp.Diff(want, batch.Texts(items)); diff != "" {
		t.Errorf("json download mismatch (-want +got):\n%s", diff)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/download/csv", nil))
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 || records[2][1] != "How are you" {
		t.Errorf("unexpected csv: %v", records)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/download/xlsx", nil))
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("xlsx download unreadable: %v", err)
	}
	rows, err := f.GetRows(batch.SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[1][2] != "Namaste" {
		t.Errorf("unexpected xlsx rows: %v", rows)
	}
}

func TestServer_UploadInvalid(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	w := do(s, uploadRequest(t, "bad.json", `{"text":"not an array"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid JSON format") {
		t.Errorf("error not shown:\n%s", w.Body.String())
	}
}

func TestServer_TranslateWithoutInput(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	w := do(s, httptest.NewRequest(http.MethodPost, "/translate", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServer_DownloadBeforeTranslate(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	for _, format := range []string{"json", "csv", "xlsx"} {
		w := do(s, httptest.NewRequest(http.MethodGet, "/download/"+format, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", format, w.Code)
		}
	}
}

func TestServer_About(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	w := do(s, httptest.NewRequest(http.MethodGet, "/about", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<h4") || !strings.Contains(w.Body.String(), "Why Hinglish?") {
		t.Errorf("about page not rendered from markdown:\n%s", w.Body.String())
	}
}

func TestServer_APITranslate(t *testing.T) {
	s := newStaticServer(t, "[1] Kya <baat> hai\n[2] Theek")

	body := strings.NewReader(`[{"text":"What's up"},{"text":"Fine"}]`)
	w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Kya <baat> hai") {
		t.Errorf("expected literal HTML characters, got %s", w.Body.String())
	}

	var res apiResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Report.Mismatch || res.Report.Expected != 2 || len(res.Outputs) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["batch_id"] != res.BatchID || stats["items"] != float64(2) {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestServer_APITranslate_InvalidInput(t *testing.T) {
	s := newStaticServer(t, "[1] x")

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"txt":"a"}]`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// erroringTranslator fails every batch.
type erroringTranslator struct{}

func (erroringTranslator) Run(ctx context.Context, items []batch.Item) (*pipeline.Result, error) {
	return nil, translator.ErrProvider
}

func TestServer_ProviderErrorKeepsPreviousResult(t *testing.T) {
	s := newStaticServer(t, "[1] Namaste")

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"text":"Hello"}]`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	s.translator = erroringTranslator{}
	w = do(s, httptest.NewRequest(http.MethodPost, "/translate", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "provider error") {
		t.Errorf("error message not shown:\n%s", w.Body.String())
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/results", nil))
	if !strings.Contains(w.Body.String(), "Namaste") {
		t.Error("previous result was lost")
	}
}

// gatedTranslator blocks until released.
type gatedTranslator struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedTranslator) Run(ctx context.Context, items []batch.Item) (*pipeline.Result, error) {
	close(g.started)
	<-g.release
	return &pipeline.Result{Inputs: items, Outputs: items}, nil
}

func TestServer_RejectsConcurrentBatch(t *testing.T) {
	gate := &gatedTranslator{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(gate, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan int)
	go func() {
		w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"text":"a"}]`)))
		done <- w.Code
	}()

	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started")
	}

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"text":"b"}]`)))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 while busy, got %d", w.Code)
	}
	w = do(s, httptest.NewRequest(http.MethodPost, "/translate", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 from form while busy, got %d", w.Code)
	}

	close(gate.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first batch: expected 200, got %d", code)
	}

	if s.session.snapshot().busy {
		t.Error("session still busy after batch finished")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", batch.ErrInvalidInput, http.StatusBadRequest},
		{"no input", errNoInput, http.StatusBadRequest},
		{"busy", errBusy, http.StatusConflict},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"provider", translator.ErrProvider, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// panickingTranslator panics on its first batch and succeeds afterwards.
type panickingTranslator struct {
	calls int
}

func (p *panickingTranslator) Run(ctx context.Context, items []batch.Item) (*pipeline.Result, error) {
	p.calls++
	if p.calls == 1 {
		panic("provider client blew up")
	}
	return &pipeline.Result{Inputs: items, Outputs: items}, nil
}

func TestServer_PanicReleasesSession(t *testing.T) {
	s, err := New(&panickingTranslator{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"text":"a"}]`)))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from the panicking batch, got %d", w.Code)
	}
	if s.session.snapshot().busy {
		t.Fatal("session still busy after a panic")
	}

	w = do(s, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`[{"text":"b"}]`)))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after recovery, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, httptest.NewRequest(http.MethodPost, "/translate", nil))
	if w.Code != http.StatusSeeOther {
		t.Errorf("expected form translate to redirect, got %d", w.Code)
	}
}
