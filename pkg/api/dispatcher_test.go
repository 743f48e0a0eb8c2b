package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/marmos91/assetfiles/internal/ratelimiter"
	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/audit/memory"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/catalog"
	"github.com/marmos91/assetfiles/pkg/events"
	"github.com/marmos91/assetfiles/pkg/fileops"
	"github.com/marmos91/assetfiles/pkg/metrics"
	"github.com/marmos91/assetfiles/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceToken = "alice-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	root   string
	audit  *memory.Store
	events *events.Hub
	d      *Dispatcher
}

func newFixture(t *testing.T, identities []tokens.Identity, tune func(*Options)) *fixture {
	t.Helper()

	root := t.TempDir()
	ops, err := fileops.New(root)
	require.NoError(t, err)

	f := &fixture{
		root:   root,
		audit:  memory.New(memory.Config{}),
		events: events.NewHub(8),
	}

	opts := Options{
		Gate:       auth.NewGate(tokens.NewTable(identities), auth.Policy{}),
		Operations: ops,
		Audit:      f.audit,
		Events:     f.events,
	}
	if tune != nil {
		tune(&opts)
	}

	f.d, err = New(opts)
	require.NoError(t, err)
	return f
}

func openFixture(t *testing.T) *fixture {
	return newFixture(t, nil, nil)
}

func gatedFixture(t *testing.T) *fixture {
	return newFixture(t, []tokens.Identity{{Name: "alice", Token: aliceToken}}, nil)
}

func (f *fixture) write(t *testing.T, name, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.d.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Gate: auth.NewGate(tokens.Table{}, auth.Policy{})})
	assert.Error(t, err)
}

func TestHealthz_NeverGated(t *testing.T) {
	f := gatedFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestList_NewestFirst(t *testing.T) {
	f := openFixture(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.write(t, "a.txt", "0123456789", t1)
	f.write(t, "b.txt", "01234567890123456789", t1.Add(time.Hour))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/ls", nil))
	require.Equal(t, http.StatusOK, w.Code)

	records := decode[[]catalog.Record](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, "b.txt", records[0].Name)
	assert.Equal(t, uint64(20), records[0].Size)
	assert.Equal(t, "a.txt", records[1].Name)
	assert.Equal(t, uint64(10), records[1].Size)
}

func TestList_UnreadableRootIsNoContent(t *testing.T) {
	f := openFixture(t)
	require.NoError(t, os.RemoveAll(f.root))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/ls", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGet(t *testing.T) {
	f := openFixture(t)
	f.write(t, "a.txt", "hello", time.Now())

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/ls/a.txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(5), decode[catalog.Record](t, w).Size)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/ls/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorCodeNotFound, decode[ErrorResponse](t, w).Code)
}

func TestAuth(t *testing.T) {
	f := gatedFixture(t)

	t.Run("missing credential", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/api/ls", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrorCodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})

	t.Run("invalid credential", func(t *testing.T) {
		req := withToken(httptest.NewRequest(http.MethodGet, "/api/ls", nil), "nope")
		w := f.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, ErrorCodeUnauthorized, decode[ErrorResponse](t, w).Code)
	})

	t.Run("valid credential", func(t *testing.T) {
		req := withToken(httptest.NewRequest(http.MethodGet, "/api/ls", nil), aliceToken)
		w := f.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Header().Get(HeaderTokenName))
	})
}

func TestAuth_RejectedMutationTouchesNothing(t *testing.T) {
	f := gatedFixture(t)
	f.write(t, "keep.txt", "x", time.Now())

	w := f.do(jsonRequest(t, http.MethodDelete, "/api/rm", []string{"keep.txt"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.FileExists(t, filepath.Join(f.root, "keep.txt"))
	assert.Equal(t, 0, f.audit.Len())
}

func TestAuth_ReadBypass(t *testing.T) {
	f := newFixture(t, []tokens.Identity{{Name: "alice", Token: aliceToken}}, func(o *Options) {
		o.Gate = auth.NewGate(tokens.NewTable([]tokens.Identity{{Name: "alice", Token: aliceToken}}),
			auth.Policy{ReadBypass: true})
	})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/ls", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(jsonRequest(t, http.MethodDelete, "/api/rm", []string{"x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartRequest(t *testing.T, files map[string]string, unnamed string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	if unnamed != "" {
		require.NoError(t, mw.WriteField("file", unnamed))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/cp", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreate(t *testing.T) {
	f := gatedFixture(t)
	updates, cancel := f.events.Subscribe()
	defer cancel()

	req := withToken(multipartRequest(t, map[string]string{"c.txt": "hello"}, "no filename here"), aliceToken)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	records := decode[[]catalog.Record](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, "c.txt", records[0].Name)
	assert.Equal(t, uint64(5), records[0].Size)

	content, err := os.ReadFile(filepath.Join(f.root, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	entries, err := f.audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Identity)
	assert.Equal(t, audit.OpCreate, entries[0].Operation)
	assert.Equal(t, []string{"c.txt"}, entries[0].Targets)
	assert.Equal(t, w.Header().Get(HeaderRequestID), entries[0].RequestID)

	select {
	case e := <-updates:
		assert.Equal(t, events.TypeCreated, e.Type)
		assert.Equal(t, "alice", e.Identity)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestCreate_NotMultipart(t *testing.T) {
	f := openFixture(t)
	w := f.do(jsonRequest(t, http.MethodPut, "/api/cp", []string{"x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenameMany_PartialSuccess(t *testing.T) {
	f := openFixture(t)
	now := time.Now()
	f.write(t, "one", "1", now)
	f.write(t, "three", "3", now)

	w := f.do(jsonRequest(t, http.MethodPost, "/api/mv", []fileops.Rename{
		{From: "one", To: "uno"},
		{From: "two", To: "dos"},
		{From: "three", To: "tres"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	records := decode[[]catalog.Record](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, "uno", records[0].Name)
	assert.Equal(t, "tres", records[1].Name)

	entries, err := f.audit.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Requested)
	assert.Equal(t, 2, entries[0].Succeeded)
}

func TestRenameOne(t *testing.T) {
	f := openFixture(t)
	f.write(t, "old.txt", "x", time.Now())

	w := f.do(jsonRequest(t, http.MethodPut, "/api/mv", fileops.Rename{From: "old.txt", To: "new.txt"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new.txt", decode[catalog.Record](t, w).Name)
	assert.NoFileExists(t, filepath.Join(f.root, "old.txt"))

	w = f.do(jsonRequest(t, http.MethodPut, "/api/mv", fileops.Rename{From: "old.txt", To: "other.txt"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedJSON(t *testing.T) {
	f := openFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/mv"},
		{http.MethodPut, "/api/mv"},
		{http.MethodDelete, "/api/rm"},
	} {
		req := httptest.NewRequest(route.method, route.path, bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := f.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code, route.method+" "+route.path)
	}
}

func TestDeleteMany(t *testing.T) {
	f := openFixture(t)
	f.write(t, "a", "1", time.Now())
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "dir", "nested"), 0o755))
	f.write(t, filepath.Join("dir", "nested", "f"), "2", time.Now())

	w := f.do(jsonRequest(t, http.MethodDelete, "/api/rm", []string{"a", "ghost", "dir"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "dir"}, decode[[]string](t, w))
	assert.NoDirExists(t, filepath.Join(f.root, "dir"))
}

func TestDeleteOne_Twice(t *testing.T) {
	f := openFixture(t)
	f.write(t, "gone.txt", "x", time.Now())

	w := f.do(httptest.NewRequest(http.MethodDelete, "/api/rm/gone.txt", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(httptest.NewRequest(http.MethodDelete, "/api/rm/gone.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) {
		o.Limiter = ratelimiter.NewPerClient(ratelimiter.Config{RequestsPerSecond: 1, Burst: 1})
	})

	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrorCodeRateLimit, decode[ErrorResponse](t, w).Code)
}

func TestAuditRoute(t *testing.T) {
	f := openFixture(t)
	require.NoError(t, f.audit.Append(context.Background(), audit.Entry{Operation: audit.OpDelete}))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/audit?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]audit.Entry](t, w), 1)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/audit?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaticFiles(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.ServeStatic = true })
	f.write(t, "page.html", "<p>hi</p>", time.Now())
	require.NoError(t, os.Mkdir(filepath.Join(f.root, "sub"), 0o755))

	w := f.do(httptest.NewRequest(http.MethodGet, "/page.html", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>hi</p>", w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/sub", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := openFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := openFixture(t)
	const id = "6f1d3c44-34a2-4b7e-9a51-6f7a2d9c1e00"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, id)
	w := f.do(req)
	assert.Equal(t, id, w.Header().Get(HeaderRequestID))
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) {
		o.Limiter = ratelimiter.NewPerClient(ratelimiter.Config{RequestsPerSecond: 1, Burst: 1})
	})

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		if f.do(req).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited)
}

func TestRateLimit_TrustedProxyForwardsClientAddress(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) {
		o.Limiter = ratelimiter.NewPerClient(ratelimiter.Config{RequestsPerSecond: 1, Burst: 1})
		o.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		assert.Equal(t, http.StatusOK, f.do(req).Code)
	}
}

func TestNew_RejectsInvalidTrustedProxy(t *testing.T) {
	ops, err := fileops.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(Options{
		Gate:           auth.NewGate(tokens.NewTable(nil), auth.Policy{}),
		Operations:     ops,
		TrustedProxies: []string{"not-an-address"},
	})
	assert.Error(t, err)
}

func TestSymlinkOutsideRootIsNotServed(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("original"), 0o644))

	f := newFixture(t, nil, func(o *Options) { o.ServeStatic = true })
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(f.root, "link.txt")))

	w := f.do(httptest.NewRequest(http.MethodGet, "/link.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "original")

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/ls/link.txt", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(multipartRequest(t, map[string]string{"link.txt": "PWNED"}, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]catalog.Record](t, w))

	data, err := os.ReadFile(filepath.Join(outside, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

// statusRecorder keeps the statuses passed to RecordRequest.
type statusRecorder struct {
	metrics.APIMetrics

	mu       sync.Mutex
	statuses map[string]int
}

func (r *statusRecorder) RecordRequest(operation string, status int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[operation] = status
}

func (r *statusRecorder) status(operation string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[operation]
}

func TestEventStreamRecordsSwitchingProtocols(t *testing.T) {
	rec := &statusRecorder{APIMetrics: metrics.NewNoopAPIMetrics(), statuses: map[string]int{}}
	f := newFixture(t, nil, func(o *Options) { o.Metrics = rec })

	srv := httptest.NewServer(f.d.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return rec.status("events") != 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusSwitchingProtocols, rec.status("events"))

	// A plain GET is refused by the upgrader and logged as such.
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, rec.status("events"))
}
