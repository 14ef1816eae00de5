package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/idilsaglam/board/internal/board"
	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/server"
	"github.com/idilsaglam/board/internal/store"
	"github.com/idilsaglam/board/internal/store/memstore"
)

const token = "letmein"

func startServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	srv, err := server.New(server.Config{Token: token, BoardIDs: []string{"1"}}, mem, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Seed(context.Background()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts, mem
}

func newGateway(t *testing.T, url, board string, opts ...HTTPOption) *HTTP {
	t.Helper()
	opts = append([]HTTPOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	g, err := NewHTTP(url, board, token, opts...)
	require.NoError(t, err)
	return g
}

func kitchen() model.Document {
	return model.Document{Sections: []model.Section{{
		Title: "Kitchen",
		Items: []model.Item{{Text: "Buy milk", Completed: true}},
	}}}
}

func TestNewHTTPRejectsBadInput(t *testing.T) {
	_, err := NewHTTP("ftp://example.com", "1", token)
	assert.Error(t, err)
	_, err = NewHTTP("http://example.com", "../1", token)
	assert.True(t, errors.Is(err, store.ErrValidation))
}

func TestHTTPRoundTrip(t *testing.T) {
	ts, _ := startServer(t)
	g := newGateway(t, ts.URL, "1")
	ctx := context.Background()

	doc, err := g.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)
	assert.Equal(t, model.Empty().ETag(), g.ETag())

	require.NoError(t, g.Save(ctx, kitchen()))
	assert.Equal(t, kitchen().ETag(), g.ETag())

	doc, err = g.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitchen(), doc)
}

func TestHTTPUnknownBoard(t *testing.T) {
	ts, _ := startServer(t)
	g := newGateway(t, ts.URL, "99")
	ctx := context.Background()

	doc, err := g.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)

	_, err = g.Fetch(ctx)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = g.Save(ctx, kitchen())
	assert.True(t, errors.Is(err, store.ErrWriteRejected), err)
}

func TestHTTPUnauthorized(t *testing.T) {
	ts, _ := startServer(t)
	g, err := NewHTTP(ts.URL, "1", "wrong")
	require.NoError(t, err)

	_, err = g.Load(context.Background())
	assert.True(t, errors.Is(err, store.ErrUnauthorized))
	err = g.Save(context.Background(), kitchen())
	assert.True(t, errors.Is(err, store.ErrUnauthorized))
}

func TestHTTPUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	g := newGateway(t, url, "1")
	_, err := g.Load(context.Background())
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
	err = g.Save(context.Background(), kitchen())
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		load   error
		save   error
	}{
		{"server error", http.StatusInternalServerError, `{"message":"Internal server error"}`, store.ErrStoreUnavailable, store.ErrStoreUnavailable},
		{"bad gateway", http.StatusBadGateway, `upstream`, store.ErrStoreUnavailable, store.ErrStoreUnavailable},
		{"validation", http.StatusBadRequest, `{"message":"Invalid data: sections must be an array"}`, store.ErrValidation, store.ErrValidation},
		{"conflict", http.StatusPreconditionFailed, `{"message":"Version conflict"}`, store.ErrVersionConflict, store.ErrVersionConflict},
		{"corrupt", http.StatusOK, `{"sections":{"title":"x"}}`, store.ErrCorruptData, nil},
		{"not json", http.StatusOK, `<html>`, store.ErrCorruptData, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()
			g := newGateway(t, ts.URL, "1")

			_, err := g.Load(context.Background())
			assert.True(t, errors.Is(err, tc.load), "load: %v", err)

			err = g.Save(context.Background(), kitchen())
			if tc.save == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.save), "save: %v", err)
			}
		})
	}
}

func TestHTTPVersionCheck(t *testing.T) {
	ts, _ := startServer(t)
	ctx := context.Background()
	first := newGateway(t, ts.URL, "1", WithVersionCheck(true))
	second := newGateway(t, ts.URL, "1", WithVersionCheck(true))

	_, err := first.Load(ctx)
	require.NoError(t, err)
	_, err = second.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, second.Save(ctx, kitchen()))
	err = first.Save(ctx, model.Empty())
	assert.True(t, errors.Is(err, store.ErrVersionConflict))

	// Without the check the stale writer wins.
	first.UseVersionCheck = false
	require.NoError(t, first.Save(ctx, model.Empty()))
	doc, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)
}

func TestControllerOverHTTP(t *testing.T) {
	ts, mem := startServer(t)
	ctx := context.Background()
	c := board.New(newGateway(t, ts.URL, "1"))
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.AddSection(ctx))
	require.NoError(t, c.RenameSection(ctx, 0, "Kitchen"))
	require.NoError(t, c.AddItem(ctx, 0, "  Buy milk  "))
	require.NoError(t, c.ToggleItem(ctx, 0, 0))

	raw, ok := mem.Raw("1")
	require.True(t, ok)
	assert.JSONEq(t, `[{"title":"Kitchen","items":[{"text":"Buy milk","completed":true}]}]`, string(raw))
}

func TestControllerRollsBackOnRejectedWrite(t *testing.T) {
	ts, _ := startServer(t)
	ctx := context.Background()
	var failures []board.Failure
	c := board.New(newGateway(t, ts.URL, "2"), board.WithNotifier(func(f board.Failure) {
		failures = append(failures, f)
	}))
	require.NoError(t, c.Load(ctx))

	err := c.AddSection(ctx)
	assert.True(t, errors.Is(err, store.ErrWriteRejected))
	assert.Empty(t, c.Document().Sections)
	require.Len(t, failures, 1)
	assert.Equal(t, "add section", failures[0].Op)
}

func TestLocalGateway(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	l := NewLocal(mem, "1")

	doc, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)
	assert.True(t, errors.Is(l.Save(ctx, kitchen()), store.ErrWriteRejected))

	require.NoError(t, mem.Ensure(ctx, "1"))
	require.NoError(t, l.Save(ctx, kitchen()))
	doc, err = l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitchen(), doc)

	mem.Put("1", []byte("{"))
	_, err = l.Load(ctx)
	assert.True(t, errors.Is(err, store.ErrCorruptData))
}

func TestWatchReceivesWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, err := server.New(server.Config{Token: token, BoardIDs: []string{"1"}}, memstore.New(), zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Seed(context.Background()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	watcher, err := NewHTTP(ts.URL, "1", token)
	require.NoError(t, err)
	writer, err := NewHTTP(ts.URL, "1", token)
	require.NoError(t, err)
	defer writer.client.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	snaps := make(chan Snapshot, 4)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Watch(ctx, func(s Snapshot) bool {
			snaps <- s
			return true
		})
	}()

	select {
	case s := <-snaps:
		assert.Empty(t, s.Document.Sections)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, writer.Save(context.Background(), kitchen()))
	select {
	case s := <-snaps:
		assert.Equal(t, kitchen(), s.Document)
		assert.Equal(t, kitchen().ETag(), s.ETag)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after write")
	}
	assert.Eventually(t, func() bool { return watcher.ETag() == kitchen().ETag() }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchStopsOnUnauthorized(t *testing.T) {
	ts, _ := startServer(t)
	g, err := NewHTTP(ts.URL, "1", "wrong")
	require.NoError(t, err)

	err = g.Watch(context.Background(), func(Snapshot) bool { return true })
	assert.True(t, errors.Is(err, store.ErrUnauthorized))
}
