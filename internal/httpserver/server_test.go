package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tracekit/blockscope/internal/duckdb"
	"github.com/tracekit/blockscope/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testEpoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *duckdb.Store, *gin.Engine) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer("", store)
	srv.startTime = time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	srv.registerRoutes(r)

	return srv, store, r
}

func seedRows(t *testing.T, store *duckdb.Store) {
	t.Helper()
	rows := []*model.AnalysisRow{
		{ConnectionID: 1, ProcessID: 100, Reason: model.ReasonPacing, Timestamp: testEpoch, Duration: 250 * time.Millisecond, Percent: 25, Count: 1},
		{ConnectionID: 2, ProcessID: 200, Reason: model.ReasonApp, Timestamp: testEpoch.Add(time.Second), Duration: 100 * time.Millisecond, Percent: 10, Count: 1},
	}
	if err := store.InsertRowBatch(rows); err != nil {
		t.Fatalf("InsertRowBatch: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRows(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["row_count"] != float64(2) {
		t.Errorf("health row_count = %v, want 2", body["row_count"])
	}
}

func TestFieldsEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("fields status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Fields []model.FieldDescriptor `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	if len(body.Fields) != 7 {
		t.Fatalf("field count = %d, want 7", len(body.Fields))
	}
	if body.Fields[2].Name != "reason" {
		t.Errorf("third field = %q, want reason", body.Fields[2].Name)
	}
}

func TestRowsEndpointFiltersByReason(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRows(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/rows?reason=Pacing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("rows status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Rows     []map[string]interface{} `json:"rows"`
		RowCount int                      `json:"row_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal rows: %v", err)
	}
	if body.RowCount != 1 || len(body.Rows) != 1 {
		t.Fatalf("row_count = %d (%d rows), want 1", body.RowCount, len(body.Rows))
	}
	if body.Rows[0]["reason"] != "Pacing" {
		t.Errorf("row reason = %v, want Pacing", body.Rows[0]["reason"])
	}
}

func TestReasonsEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRows(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/reasons", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("reasons status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Reasons        []model.ReasonStat `json:"reasons"`
		TotalBlockedNs int64              `json:"total_blocked_ns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal reasons: %v", err)
	}
	if len(body.Reasons) != 2 {
		t.Fatalf("reason count = %d, want 2", len(body.Reasons))
	}
	if want := int64(350 * time.Millisecond); body.TotalBlockedNs != want {
		t.Errorf("total_blocked_ns = %d, want %d", body.TotalBlockedNs, want)
	}
}

func TestProcessesEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRows(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/processes?limit=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("processes status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Processes []model.ProcessStat `json:"processes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal processes: %v", err)
	}
	if len(body.Processes) != 1 {
		t.Fatalf("process count = %d, want 1 (limit)", len(body.Processes))
	}
	if body.Processes[0].ProcessID != 100 {
		t.Errorf("top process = %d, want 100", body.Processes[0].ProcessID)
	}
}

func TestQueryEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRows(t, store)

	payload, _ := json.Marshal(map[string]string{
		"sql": "SELECT COUNT(*) AS n FROM block_rows",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestQueryEndpointRejectsWrites(t *testing.T) {
	_, _, r := newTestServer(t)

	payload, _ := json.Marshal(map[string]string{
		"sql": "DROP TABLE block_rows",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("query status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQueryEndpointMissingBody(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("query status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
