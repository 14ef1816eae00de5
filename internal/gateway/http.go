// Package gateway implements board.Gateway over the HTTP API and over a
// local store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

// HTTP reads and writes one board through the server API.
type HTTP struct {
	base   *url.URL
	board  string
	token  string
	client *http.Client
	logger *zap.Logger

	// UseVersionCheck sends If-Match with the last seen ETag on every save,
	// turning a lost update into ErrVersionConflict.
	UseVersionCheck bool

	mu   sync.Mutex
	etag string
}

type HTTPOption func(*HTTP)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTP) {
		if c != nil {
			g.client = c
		}
	}
}

func WithLogger(logger *zap.Logger) HTTPOption {
	return func(g *HTTP) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithVersionCheck(on bool) HTTPOption {
	return func(g *HTTP) { g.UseVersionCheck = on }
}

func NewHTTP(baseURL, board, token string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if err := store.CheckID(board); err != nil {
		return nil, err
	}
	g := &HTTP{
		base:   u,
		board:  board,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("gateway").With(zap.String("board", board))
	return g, nil
}

func (g *HTTP) Board() string { return g.board }

// ETag returns the version seen on the last successful load or save.
func (g *HTTP) ETag() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.etag
}

func (g *HTTP) setETag(tag string) {
	g.mu.Lock()
	g.etag = tag
	g.mu.Unlock()
}

func (g *HTTP) meetingURL(suffix string) string {
	return g.base.String() + "/api/meeting/" + url.PathEscape(g.board) + suffix
}

// Load fetches the whole document. A board with no record reads as empty.
func (g *HTTP) Load(ctx context.Context) (model.Document, error) {
	doc, err := g.Fetch(ctx)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("no record, starting empty")
		return model.Empty(), nil
	}
	return doc, err
}

// Fetch is Load without the not-found fallback.
func (g *HTTP) Fetch(ctx context.Context) (model.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.meetingURL(""), nil)
	if err != nil {
		return model.Document{}, err
	}
	resp, body, err := g.do(req)
	if err != nil {
		return model.Document{}, err
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return model.Document{}, fmt.Errorf("load board %s: %w", g.board, err)
	}

	var payload struct {
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Document{}, fmt.Errorf("load board %s: %w: %v", g.board, store.ErrCorruptData, err)
	}
	doc, err := store.Decode(payload.Sections)
	if err != nil {
		return model.Document{}, fmt.Errorf("load board %s: %w", g.board, err)
	}
	g.setETag(unquote(resp.Header.Get("ETag")))
	return doc, nil
}

// Save replaces the whole document.
func (g *HTTP) Save(ctx context.Context, doc model.Document) error {
	sections := doc.Sections
	if sections == nil {
		sections = []model.Section{}
	}
	payload, err := json.Marshal(struct {
		Sections []model.Section `json:"sections"`
	}{sections})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.meetingURL(""), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.UseVersionCheck {
		if tag := g.ETag(); tag != "" {
			req.Header.Set("If-Match", `"`+tag+`"`)
		}
	}
	resp, body, err := g.do(req)
	if err != nil {
		return err
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %v", store.ErrWriteRejected, err)
		}
		return fmt.Errorf("save board %s: %w", g.board, err)
	}
	if tag := unquote(resp.Header.Get("ETag")); tag != "" {
		g.setETag(tag)
	} else {
		g.setETag(doc.ETag())
	}
	return nil
}

func (g *HTTP) do(req *http.Request) (*http.Response, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, store.Unavailable(req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, store.Unavailable("read response", err)
	}
	return resp, body, nil
}

// statusError maps an API status onto the store error taxonomy.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := apiMessage(body)
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", store.ErrValidation, msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", store.ErrUnauthorized, msg)
	case code == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", store.ErrVersionConflict, msg)
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", store.ErrStoreUnavailable, code, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", store.ErrWriteRejected, code, msg)
	}
}

func apiMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func unquote(tag string) string {
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
