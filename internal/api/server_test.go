package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/catalog/catalogtest"
	"github.com/dgallion1/planmark/internal/catalog/memstore"
	"github.com/dgallion1/planmark/internal/config"
	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/ingest"
	"github.com/dgallion1/planmark/internal/plan"
)

const testKey = "test-key"

type testEnv struct {
	srv       *Server
	store     *memstore.Store
	floorPlan plan.Page
	elevation plan.Page
	cover     plan.Page
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	fp, el := catalogtest.Seed(t, store)
	cover, err := store.CreatePage(context.Background(), plan.Page{
		DocumentID: "doc-1", Ordinal: 1, NativeWidth: 612, NativeHeight: 792, PageType: plan.PageCover,
	})
	require.NoError(t, err)

	cfg := config.Config{
		PlanmarkAPIKey:     testKey,
		CatalogBackend:     config.BackendMemory,
		WorkerCount:        1,
		MaxQueueSize:       4,
		MaxConcurrentStore: 2,
		MaxUploadBytes:     1 << 20,
		JobTTL:             time.Hour,
	}
	ecfg := editor.DefaultConfig()
	ecfg.Retry = errreport.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	reg := editor.NewRegistry(store, ecfg, time.Hour, log)
	orch := ingest.NewOrchestrator(cfg, store, errreport.NewReporter(errreport.Config{}, log), log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	return &testEnv{
		srv:       NewServer(reg, store, orch, nil, log, cfg),
		store:     store,
		floorPlan: fp,
		elevation: el,
		cover:     cover,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) openSession(t *testing.T, pageID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", map[string]string{"pageId": pageID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["session_id"].(string)
}

func (e *testEnv) drawBox(t *testing.T, sid, typ, label string, b plan.Box) *httptest.ResponseRecorder {
	t.Helper()
	base := "/api/sessions/" + sid
	rec := e.do(t, http.MethodPost, base+"/arm", map[string]string{"type": typ, "label": label})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, base+"/pointer/down", map[string]float64{"x": b.X, "y": b.Y})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, base+"/pointer/move", map[string]float64{"x": b.X + b.W, "y": b.Y + b.H})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return e.do(t, http.MethodPost, base+"/pointer/up", nil)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t)
	for _, header := range []string{"", "Bearer wrong", "Basic " + testKey} {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestSession_DrawCommitAndNotify(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.floorPlan.ID)
	base := "/api/sessions/" + sid

	rec := e.drawBox(t, sid, "room", "", plan.Box{X: 100, Y: 100, W: 150, H: 120})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode(t, rec)
	assert.Equal(t, "preview_ready", view["state"].(map[string]any)["mode"])
	draft := view["draft"].(map[string]any)
	assert.Equal(t, 75.0, draft["realWidth"])

	rec = e.do(t, http.MethodPost, base+"/commit", map[string]string{"label": "Kitchen 1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ann := decode(t, rec)["annotation"].(map[string]any)
	assert.Equal(t, "Kitchen 1", ann["label"])
	roomID := ann["linkedEntityId"].(string)

	rec = e.do(t, http.MethodGet, base+"/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode(t, rec)["notifications"].([]any)
	require.Len(t, notes, 2)
	assert.Equal(t, NoticeCommitted, notes[0].(map[string]any)["kind"])
	sel := notes[1].(map[string]any)["selection"].(map[string]any)
	assert.Equal(t, roomID, sel["roomId"])

	rec = e.do(t, http.MethodGet, base+"/notifications", nil)
	assert.Empty(t, decode(t, rec)["notifications"], "drained")

	rec = e.do(t, http.MethodGet, base+"/overlay.svg?width=800&height=600", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Kitchen 1")

	rec = e.do(t, http.MethodGet, base+"/children?level=room", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["entities"], 1)
}

func TestSession_DuplicateAtRelease(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.floorPlan.ID)
	base := "/api/sessions/" + sid

	require.Equal(t, http.StatusOK, e.drawBox(t, sid, "room", "Kitchen 1", plan.Box{X: 100, Y: 100, W: 150, H: 120}).Code)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, base+"/commit", nil).Code)

	rec := e.drawBox(t, sid, "room", " kitchen  1", plan.Box{X: 300, Y: 300, W: 50, H: 50})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, errreport.CodeDuplicateDetected, body["code"])
	st := body["view"].(map[string]any)["state"].(map[string]any)
	assert.Equal(t, "armed", st["mode"])
	assert.NotEmpty(t, st["highlight"])

	rec = e.do(t, http.MethodGet, base+"/errors", nil)
	assert.Len(t, decode(t, rec)["errors"], 1)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, base+"/errors", nil).Code)
	assert.Empty(t, decode(t, e.do(t, http.MethodGet, base+"/errors", nil))["errors"])
}

func TestSession_PageGate(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.cover.ID)

	rec := e.do(t, http.MethodPost, "/api/sessions/"+sid+"/arm", map[string]string{"type": "cabinet_run"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, errreport.CodePolicyViolation, body["code"])
	assert.Equal(t, "idle", body["state"].(map[string]any)["mode"])

	rec = e.do(t, http.MethodPost, "/api/sessions/"+sid+"/arm", map[string]string{"type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_CommitWithoutPreview(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.floorPlan.ID)
	rec := e.do(t, http.MethodPost, "/api/sessions/"+sid+"/commit", map[string]string{"label": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSession_ViewportAndEscape(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.floorPlan.ID)
	base := "/api/sessions/" + sid

	rec := e.do(t, http.MethodPost, base+"/viewport/zoom", map[string]any{"zoom": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decode(t, rec)["zoom"], "clamped")

	rec = e.do(t, http.MethodPost, base+"/viewport/zoom", map[string]any{"zoom": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/viewport/pan", map[string]float64{"dx": 5, "dy": -5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/viewport/fit", map[string]float64{"width": 612, "height": 792})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["zoom"])

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/arm", map[string]string{"type": "room"}).Code)
	rec = e.do(t, http.MethodPost, base+"/escape", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["state"].(map[string]any)["mode"])
}

func TestSession_NotFoundAndDelete(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/sessions/nope", nil).Code)

	rec := e.do(t, http.MethodPost, "/api/sessions", map[string]string{"pageId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sid := e.openSession(t, "")
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/sessions/"+sid, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/sessions/"+sid, nil).Code)
}

func TestSession_MetadataAndDelete(t *testing.T) {
	e := newTestEnv(t)
	sid := e.openSession(t, e.floorPlan.ID)
	base := "/api/sessions/" + sid

	require.Equal(t, http.StatusOK, e.drawBox(t, sid, "room", "Pantry", plan.Box{X: 10, Y: 10, W: 50, H: 50}).Code)
	rec := e.do(t, http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["annotation"].(map[string]any)["id"].(string)

	rec = e.do(t, http.MethodPatch, base+"/annotations/"+id+"/metadata", map[string]any{"attrs": map[string]any{"finish": "oak"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "oak", decode(t, rec)["metadata"].(map[string]any)["finish"])

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, base+"/annotations/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, base+"/annotations/"+id, nil).Code)
}

func TestPages(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/documents/doc-1/pages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pages := decode(t, rec)["pages"].([]any)
	require.Len(t, pages, 3)
	assert.Equal(t, "cover", pages[0].(map[string]any)["pageType"])
	assert.Equal(t, []any{"note"}, pages[0].(map[string]any)["allowedTypes"])

	rec = e.do(t, http.MethodPut, "/api/pages/"+e.elevation.ID+"/type", map[string]string{"pageType": "countertop"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "countertop", decode(t, rec)["pageType"])

	rec = e.do(t, http.MethodPut, "/api/pages/"+e.elevation.ID+"/type", map[string]string{"pageType": "blueprint"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/pages/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func upload(t *testing.T, e *testEnv, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &buf)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestIngest_Outline(t *testing.T) {
	e := newTestEnv(t)
	rec := upload(t, e, "rooms.md", "# Kitchen 1\n## Sink Wall\n# Pantry\n")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "outline", body["kind"])

	poll := body["poll_url"].(string)
	var status string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status = decode(t, e.do(t, http.MethodGet, poll, nil))["status"].(string)
		if status == string(ingest.StatusCompleted) || status == string(ingest.StatusFailed) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, string(ingest.StatusCompleted), status)

	rooms, err := e.store.ListEntities(context.Background(), plan.TypeRoom, "")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestIngest_Rejects(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, upload(t, e, "rooms.xlsx", "x").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/ingest/nope/status", nil).Code)
}

func TestCatalogStats(t *testing.T) {
	e := newTestEnv(t)
	e.openSession(t, "")
	rec := e.do(t, http.MethodGet, "/api/stats/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "memory", body["backend"])
	assert.Equal(t, 1.0, body["sessions"])
	assert.NotContains(t, body, "latency")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "a_b.md", sanitizeFilename("a..b.md"))
	assert.False(t, strings.Contains(sanitizeFilename(`c:\x\y.md`), `\`))
}
