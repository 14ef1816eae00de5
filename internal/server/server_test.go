package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
	"github.com/idilsaglam/board/internal/store/memstore"
)

const testToken = "s3cret"

type harness struct {
	t     *testing.T
	store *memstore.Store
	srv   *Server
	ts    *httptest.Server
}

func newHarness(t *testing.T, st store.Store) *harness {
	t.Helper()
	mem, _ := st.(*memstore.Store)
	if st == nil {
		mem = memstore.New()
		st = mem
	}
	srv, err := New(Config{Token: testToken, BoardIDs: []string{"1"}}, st, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Seed(context.Background()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &harness{t: t, store: mem, srv: srv, ts: ts}
}

func (h *harness) do(method, path, body string, header http.Header) (*http.Response, string) {
	h.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, string(b)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, memstore.New(), nil, nil)
	assert.Error(t, err)
}

func TestGetEmptyRecord(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(http.MethodGet, "/api/meeting/1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sections":[]}`, body)
	assert.Equal(t, `"`+model.Empty().ETag()+`"`, resp.Header.Get("ETag"))
}

func TestGetUnknownMeeting(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(http.MethodGet, "/api/meeting/42", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Meeting not found"}`, body)
}

func TestGetUpgradesLegacyItems(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Put("1", []byte(`[{"title":"Agenda","items":["first",{"text":"second","completed":true}]}]`))

	resp, body := h.do(http.MethodGet, "/api/meeting/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sections":[{"title":"Agenda","items":[
		{"text":"first","completed":false},
		{"text":"second","completed":true}]}]}`, body)

	raw, _ := h.store.Raw("1")
	assert.Contains(t, string(raw), `"first"`, "read path must not rewrite stored data")
}

func TestGetCorruptAnswersEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Put("1", []byte(`{not json`))
	resp, body := h.do(http.MethodGet, "/api/meeting/1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sections":[]}`, body)
}

func TestPutRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	doc := `{"sections":[{"title":"Kitchen","items":[{"text":"Buy milk","completed":true}]}]}`

	resp, body := h.do(http.MethodPut, "/api/meeting/1", doc, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, body)
	etag := resp.Header.Get("ETag")
	assert.NotEmpty(t, etag)

	resp, body = h.do(http.MethodGet, "/api/meeting/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, doc, body)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
}

func TestPutRejectsInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"object":        `{"sections":{}}`,
		"null":          `{"sections":null}`,
		"missing":       `{}`,
		"string":        `{"sections":"Kitchen"}`,
		"not json":      `sections`,
		"bad section":   `{"sections":[42]}`,
		"top level arr": `[]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			before, _ := h.store.Raw("1")

			resp, got := h.do(http.MethodPut, "/api/meeting/1", body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.JSONEq(t, `{"message":"Invalid data: sections must be an array"}`, got)

			after, _ := h.store.Raw("1")
			assert.Equal(t, before, after)
		})
	}
}

func TestPutUnknownMeeting(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(http.MethodPut, "/api/meeting/7", `{"sections":[]}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Meeting not found"}`, body)
	_, ok := h.store.Raw("7")
	assert.False(t, ok)
}

func TestOtherMethodsNotAllowed(t *testing.T) {
	h := newHarness(t, nil)
	for _, method := range []string{http.MethodPost, http.MethodDelete, http.MethodPatch} {
		resp, body := h.do(method, "/api/meeting/1", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Equal(t, "GET, PUT", resp.Header.Get("Allow"))
		assert.Equal(t, "Method "+method+" Not Allowed", body)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	h := newHarness(t, nil)
	for name, header := range map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"scheme":  "Basic " + testToken,
	} {
		req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/api/meeting/1", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := h.ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestIfMatch(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := h.do(http.MethodGet, "/api/meeting/1", "", nil)
	etag := resp.Header.Get("ETag")

	doc := `{"sections":[{"title":"A","items":[]}]}`
	resp, _ = h.do(http.MethodPut, "/api/meeting/1", doc, http.Header{"If-Match": {etag}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(http.MethodPut, "/api/meeting/1", `{"sections":[]}`, http.Header{"If-Match": {etag}})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Version conflict"}`, body)

	_, body = h.do(http.MethodGet, "/api/meeting/1", "", nil)
	assert.JSONEq(t, doc, body)
}

type downStore struct{}

func (downStore) Load(context.Context, string) (model.Document, bool, error) {
	return model.Document{}, false, store.Unavailable("load", io.ErrUnexpectedEOF)
}

func (downStore) Save(context.Context, string, model.Document) error {
	return store.Unavailable("save", io.ErrUnexpectedEOF)
}

func (downStore) Ensure(context.Context, string) error { return nil }

func (downStore) Close() error { return nil }

func TestStoreFailureIsInternalError(t *testing.T) {
	h := newHarness(t, downStore{})
	resp, body := h.do(http.MethodGet, "/api/meeting/1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Internal server error"}`, body)

	resp, body = h.do(http.MethodPut, "/api/meeting/1", `{"sections":[]}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Internal server error"}`, body)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodGet, "/api/meeting/1", "", nil)

	resp, err := h.ts.Client().Get(h.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = h.ts.Client().Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(b), "board_http_requests_total")
}

func TestMetricsOnSeparateListener(t *testing.T) {
	srv, err := New(Config{Token: testToken, MetricsAddr: "127.0.0.1:0"}, memstore.New(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()
	defer srv.Close()

	resp, err := api.Client().Get(api.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	rec := httptest.NewRecorder()
	srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "board_live_subscribers")
}

func TestRunMetricsStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, err := New(Config{Token: testToken, MetricsAddr: "127.0.0.1:0"}, memstore.New(), zap.NewNop(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunMetrics(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics listener did not stop")
	}

	srv, err = New(Config{Token: testToken}, memstore.New(), zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Error(t, srv.RunMetrics(context.Background()))
}

func TestLiveFeedPushesWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mem := memstore.New()
	// Hijacked connections outlive the test server, so their access log
	// lines can land after the test returns.
	srv, err := New(Config{Token: testToken, BoardIDs: []string{"1"}}, mem, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Seed(context.Background()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/meeting/1/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + testToken}})
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	var first Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Empty(t, first.Sections)
	assert.Equal(t, model.Empty().ETag(), first.ETag)

	doc := model.Document{Sections: []model.Section{{Title: "Kitchen", Items: []model.Item{{Text: "Buy milk"}}}}}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/meeting/1", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	put, err := ts.Client().Do(req)
	require.NoError(t, err)
	put.Body.Close()
	require.Equal(t, http.StatusOK, put.StatusCode)

	var next Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, doc.Sections, next.Sections)
	assert.Equal(t, doc.ETag(), next.ETag)
	assert.Equal(t, 1, srv.hub.Subscribers("1"))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.hub.Subscribers("1") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestLiveFeedRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/meeting/1/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
