package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/drillprep/internal/api"
	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/timestamp"
)

type harness struct {
	store    *store.Store
	sessions *session.Manager
	handler  http.Handler
}

func setup(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SeedChannels(channels.Default().Channels()); err != nil {
		t.Fatal(err)
	}
	mgr := session.NewManager(st)
	t.Cleanup(func() {
		mgr.Close()
		st.Close()
	})
	return &harness{
		store:    st,
		sessions: mgr,
		handler:  api.NewServer(st, mgr, ":0").Handler(),
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func rigCSV(header string, rows int) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString("m,rpm,m/h,\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,120,%d,%.6f\n", 1000+i, 10+i%10, 45460.5+float64(i)/86400)
	}
	return b.String()
}

func (h *harness) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

// openSession uploads a clean 100 row log and returns its session id.
func (h *harness) openSession(t *testing.T) string {
	t.Helper()
	w := h.upload(t, "rig.csv", rigCSV("DMEA,RPM,ROP,Time", 100))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var v api.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v.ID
}

func (h *harness) completeMapping(t *testing.T, id string) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/sessions/"+id+"/mapping/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h.wait(t, id)
}

func (h *harness) wait(t *testing.T, id string) {
	t.Helper()
	sess, ok := h.sessions.Get(id)
	require.True(t, ok)
	sess.Wait()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.do(t, http.MethodGet, "/health", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	health := decode[api.HealthStatus](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestChannelCRUD(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.do(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]models.ChannelDefinition](t, w)
	assert.Len(t, all, channels.Default().Len())

	w = h.do(t, http.MethodPost, "/api/channels", map[string]any{
		"standardName": "ML_WOB",
		"aliases":      []string{"WOB", " Weight on bit "},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.ChannelDefinition](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"WOB", "Weight on bit"}, created.Aliases)

	w = h.do(t, http.MethodPost, "/api/channels", map[string]any{"standardName": "ML_WOB"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodPost, "/api/channels", map[string]any{"aliases": []string{"x"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "standardName")

	w = h.do(t, http.MethodPut, "/api/channels/"+created.ID, map[string]any{
		"standardName": "ML_WOB",
		"aliases":      []string{"WOB", "SWOB"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/channels/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"WOB", "SWOB"}, decode[models.ChannelDefinition](t, w).Aliases)

	w = h.do(t, http.MethodGet, "/api/channels?search=swob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ChannelDefinition](t, w), 1)

	w = h.do(t, http.MethodDelete, "/api/channels/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, http.MethodGet, "/api/channels/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodPut, "/api/channels/"+created.ID, map[string]any{"standardName": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSharedAliases(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.do(t, http.MethodGet, "/api/channels/shared-aliases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	shared := decode[[]channels.SharedAlias](t, w)
	assert.Equal(t, channels.Default().SharedAliases(), shared)
}

func TestUploadUnsupportedFile(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.upload(t, "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file type")

	w = h.do(t, http.MethodGet, "/api/uploads", nil)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestUploadStoresPayloadOnce(t *testing.T) {
	t.Parallel()
	h := setup(t)

	content := rigCSV("DMEA,RPM,ROP,Time", 20)
	first := decode[api.SessionView](t, h.upload(t, "rig.csv", content))
	second := decode[api.SessionView](t, h.upload(t, "rig.csv", content))

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.UploadID, second.UploadID)
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 20, first.Audit.Rows)

	uploads := decode[[]api.UploadView](t, h.do(t, http.MethodGet, "/api/uploads", nil))
	require.Len(t, uploads, 1)
	assert.Equal(t, "upload", uploads[0].Source)
	require.NotNil(t, uploads[0].Rows)
	assert.EqualValues(t, 20, *uploads[0].Rows)
	require.NotNil(t, uploads[0].QualityScore)
}

func TestWizardFlow(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	base := "/api/sessions/" + id

	view := decode[api.SessionView](t, h.do(t, http.MethodGet, base, nil))
	assert.Equal(t, "rig.csv", view.Filename)
	assert.True(t, view.Mapping.Complete)
	assert.Equal(t, "ML_DMEA", view.Mapping.Columns[0].Mapped)

	w := h.do(t, http.MethodGet, base+"/export?format=csv", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "export needs a completed mapping")

	h.completeMapping(t, id)

	res := decode[session.Result](t, h.do(t, http.MethodGet, base+"/decimated", nil))
	require.Len(t, res.Points, 10)
	assert.Equal(t, 1005.0, res.Points[0].Depth)

	w = h.do(t, http.MethodPut, base+"/config", map[string]any{"depthInterval": 50})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	h.wait(t, id)
	res = decode[session.Result](t, h.do(t, http.MethodGet, base+"/decimated", nil))
	assert.Len(t, res.Points, 2)

	w = h.do(t, http.MethodPut, base+"/sections", map[string]any{
		"sections": []map[string]any{
			{"id": "s1", "startDepth": 1000, "endDepth": 1050},
			{"id": "s2", "startDepth": 1050, "endDepth": 1100},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	h.wait(t, id)

	w = h.do(t, http.MethodGet, base+"/export?format=csv&dataset=decimated", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `rig_decimated.csv`)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, "DEPTH,WOB,RPM,ROP,TFLO,TVD,RUN", lines[0])
	assert.True(t, strings.HasSuffix(lines[2], ",1"), lines[2])
	assert.True(t, strings.HasSuffix(lines[3], ",2"), lines[3])

	w = h.do(t, http.MethodGet, base+"/export?format=las", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "~ASCII")
	assert.Contains(t, w.Header().Get("Content-Disposition"), `rig_mapped.las`)

	w = h.do(t, http.MethodGet, base+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMappingGate(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.upload(t, "rig.csv", rigCSV("DMEA,RPM,ROP,Gibberish", 10))
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[api.SessionView](t, w)
	assert.Equal(t, []int{3}, view.Mapping.Incomplete)
	base := "/api/sessions/" + view.ID

	w = h.do(t, http.MethodPost, base+"/mapping/complete", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Gibberish")

	w = h.do(t, http.MethodPut, base+"/mapping/3", map[string]string{"mapped": "TIME"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode[api.MappingView](t, w)
	assert.True(t, m.Complete)
	assert.True(t, m.Columns[3].ManualEdit)

	w = h.do(t, http.MethodPut, base+"/mapping/9", map[string]string{"mapped": "TIME"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodPut, base+"/mapping/x", map[string]string{"mapped": "TIME"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.completeMapping(t, view.ID)
}

func TestSelectionAndDelete(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	base := "/api/sessions/" + id

	w := h.do(t, http.MethodPost, base+"/selection/delete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	h.completeMapping(t, id)

	w = h.do(t, http.MethodPost, base+"/selection/points/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, decode[map[string][]int](t, w)["rows"])

	w = h.do(t, http.MethodPost, base+"/selection/rows/50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, base+"/selection/rows/50", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, base+"/selection/points/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, base+"/selection/delete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sel struct {
		Rows    []int `json:"rows"`
		Deleted int   `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Equal(t, 10, sel.Deleted)
	assert.Empty(t, sel.Rows)

	h.wait(t, id)
	res := decode[session.Result](t, h.do(t, http.MethodGet, base+"/decimated", nil))
	assert.Equal(t, 90, res.Rows)
	assert.Len(t, res.Points, 9)

	w = h.do(t, http.MethodGet, base+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 92, "header, units and the 90 kept rows")
	assert.True(t, strings.HasPrefix(lines[2], "1010,"), lines[2])

	w = h.do(t, http.MethodDelete, base+"/selection", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChartCaching(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	h.completeMapping(t, id)
	base := "/api/sessions/" + id

	w := h.do(t, http.MethodGet, base+"/chart/rop.png?width=200&height=300", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = h.do(t, http.MethodGet, base+"/chart/rop.png?width=200&height=300", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	h.do(t, http.MethodPost, base+"/selection/rows/3", nil)
	w = h.do(t, http.MethodGet, base+"/chart/rop.png?width=200&height=300", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"), "selection changes the picture")

	w = h.do(t, http.MethodGet, base+"/chart/torque.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWellDataValidation(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	base := "/api/sessions/" + id

	w := h.do(t, http.MethodPut, base+"/config", map[string]any{"depthInterval": -1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = h.do(t, http.MethodPut, base+"/config", map[string]any{"filterMode": "lithology"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = h.do(t, http.MethodPut, base+"/config", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, base+"/formations", map[string]any{
		"formations": []map[string]any{{"startDepth": 0, "endDepth": 100}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPut, base+"/survey", map[string]any{
		"stations": []map[string]any{{"md": 0, "inclination": 0}, {"md": 100, "inclination": 0}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	stations := decode[map[string][]models.SurveyStation](t, w)["stations"]
	require.Len(t, stations, 2)
	assert.InDelta(t, 100, stations[1].TVD, 1e-9)

	w = h.do(t, http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000/config", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimeBasedLogCompletesMapping(t *testing.T) {
	t.Parallel()
	h := setup(t)

	var b strings.Builder
	b.WriteString("Time,RPM,ROP\n,rpm,m/h\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%.6f,120,%d\n", 45460.5+float64(i)/86400, 10+i%5)
	}
	w := h.upload(t, "surface.csv", b.String())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[api.SessionView](t, w).ID
	h.completeMapping(t, id)

	w = h.do(t, http.MethodGet, "/api/sessions/"+id+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, "TIME,ML_RPM,ML_ROP", lines[0])
	assert.Len(t, lines, 22)
}

func TestDegenerateSectionGivesNoPoints(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	base := "/api/sessions/" + id
	h.completeMapping(t, id)

	w := h.do(t, http.MethodPut, base+"/sections", map[string]any{
		"sections": []map[string]any{{"id": "s1", "startDepth": 1080, "endDepth": 1020}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	h.wait(t, id)

	res := decode[session.Result](t, h.do(t, http.MethodGet, base+"/decimated", nil))
	assert.Empty(t, res.Points)
	assert.Equal(t, 100, res.Rows)
}

func TestTimestampPreviewAndDetect(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	base := "/api/sessions/" + id

	w := h.do(t, http.MethodGet, base+"/timestamps/detect?column=Time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []api.Detection{{Column: "Time", Format: timestamp.Excel1900}}, decode[[]api.Detection](t, w))

	w = h.do(t, http.MethodPost, base+"/timestamps/preview", map[string]any{
		"column": "Time", "format": timestamp.Excel1900, "limit": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[[]timestamp.PreviewEntry](t, w)
	require.Len(t, preview, 2)
	assert.Equal(t, "17/06/2024 12:00:00", preview[0].Formatted)
	assert.True(t, preview[0].Valid)

	w = h.do(t, http.MethodPost, base+"/timestamps/preview", map[string]any{"column": "Time", "format": "julian"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/timestamps/formats", nil)
	assert.Len(t, decode[[]timestamp.Option](t, w), len(timestamp.Options()))
}

func TestTimestampConversionJob(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	w := h.do(t, http.MethodPost, "/api/sessions/"+id+"/timestamps/convert", timestamp.Request{
		Columns: []string{"Time"},
		Format:  timestamp.Excel1900,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode[map[string]string](t, w)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + accepted["socket"]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var events []timestamp.Event
	for {
		var ev timestamp.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, timestamp.EventDone, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, 100, last.Result.Converted)

	sess, _ := h.sessions.Get(id)
	ds := sess.Dataset()
	assert.Equal(t, "17/06/2024 12:00:00", ds.Rows[0][3].String())

	status := decode[api.JobStatus](t, h.do(t, http.MethodGet, "/api/jobs/"+accepted["jobId"], nil))
	assert.Equal(t, "done", status.Status)
	assert.Equal(t, 100, status.Progress)

	runs := decode[[]api.RunView](t, h.do(t, http.MethodGet, "/api/sessions/"+id+"/runs", nil))
	require.NotEmpty(t, runs)
	assert.Equal(t, store.RunTimestamp, runs[0].Kind)
	assert.Equal(t, "ok", runs[0].Outcome)

	w = h.do(t, http.MethodPost, "/api/sessions/"+id+"/timestamps/convert", map[string]any{"columns": []string{"Nope"}, "format": timestamp.Excel1900})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodPost, "/api/sessions/"+id+"/timestamps/convert", map[string]any{"columns": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = h.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	h := setup(t)
	id := h.openSession(t)

	list := decode[[]session.Summary](t, h.do(t, http.MethodGet, "/api/sessions", nil))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	w := h.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFTPNotConfigured(t *testing.T) {
	t.Parallel()
	h := setup(t)

	w := h.do(t, http.MethodGet, "/api/ftp/files", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRecords(t *testing.T) {
	t.Parallel()
	h := setup(t)

	rows := make([]map[string]string, 0, 5)
	for i := range 5 {
		rows = append(rows, map[string]string{
			"DMEA": fmt.Sprint(1000 + i),
			"RPM":  "120",
			"ROP":  fmt.Sprint(20 + i),
		})
	}
	w := h.do(t, http.MethodPost, "/api/uploads/records", map[string]any{
		"filename": "rig.json",
		"headers":  []string{"DMEA", "RPM", "ROP"},
		"units":    []string{"m", "rpm", "m/h"},
		"rows":     rows,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	v := decode[api.SessionView](t, w)
	assert.Equal(t, 5, v.Rows)
	assert.Equal(t, "rig.json", v.Filename)

	uploads := decode[[]api.UploadView](t, h.do(t, http.MethodGet, "/api/uploads", nil))
	require.Len(t, uploads, 1)
	assert.Equal(t, "rig.csv", uploads[0].Filename)

	w = h.do(t, http.MethodPost, "/api/uploads/records", map[string]any{"filename": "x.json"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
