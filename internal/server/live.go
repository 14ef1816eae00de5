package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 8
)

// Snapshot is the message pushed to live subscribers.
type Snapshot struct {
	Sections []model.Section `json:"sections"`
	ETag     string          `json:"etag"`
}

type subscriber struct {
	board string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans every successful write out to the websocket subscribers of the
// same board. A subscriber that falls behind is disconnected.
type Hub struct {
	logger *zap.Logger
	gauge  prometheus.Gauge

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger.Named("live"), subs: map[string]map[*subscriber]struct{}{}}
}

func (h *Hub) add(board string) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	sub := &subscriber{board: board, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	if h.subs[board] == nil {
		h.subs[board] = map[*subscriber]struct{}{}
	}
	h.subs[board][sub] = struct{}{}
	h.wg.Add(1)
	if h.gauge != nil {
		h.gauge.Inc()
	}
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.board]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			if h.gauge != nil {
				h.gauge.Dec()
			}
		}
		if len(set) == 0 {
			delete(h.subs, sub.board)
		}
	}
	h.mu.Unlock()
	h.wg.Done()
}

// Broadcast queues a snapshot of doc for every subscriber of board.
func (h *Hub) Broadcast(board string, doc model.Document, etag string) {
	msg, err := json.Marshal(Snapshot{Sections: nonNil(doc.Sections), ETag: etag})
	if err != nil {
		h.logger.Error("encode snapshot", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[board] {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn("dropping slow subscriber", zap.String("board", board))
			sub.stop()
		}
	}
}

// Subscribers returns how many connections follow board.
func (h *Hub) Subscribers(board string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[board])
}

// Close disconnects every subscriber and waits for their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.stop()
		}
	}
	h.mu.Unlock()
	h.wg.Wait()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := store.CheckID(id); err != nil {
		writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
		return
	}
	log := s.logger.With(zap.String("board", id), zap.String("request_id", requestID(r.Context())))

	// Registering and reading the first snapshot under the board lock keeps
	// it ordered before any broadcast from a later write.
	unlock := s.lock(id)
	doc, ok, err := s.store.Load(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrCorruptData) {
		unlock()
		log.Error("load failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{msgInternal})
		return
	}
	if err == nil && !ok {
		unlock()
		writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
		return
	}
	if err != nil {
		doc = model.Empty()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		unlock()
		log.Error("failed to upgrade", zap.Error(err))
		return
	}
	sub := s.hub.add(id)
	if sub == nil {
		unlock()
		_ = conn.Close()
		return
	}
	if first, err := json.Marshal(Snapshot{Sections: nonNil(doc.Sections), ETag: doc.ETag()}); err == nil {
		sub.send <- first
	}
	unlock()
	defer s.hub.remove(sub)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.stop()
				return
			}
		}
	}()

	log.Debug("subscriber connected")
	for {
		select {
		case msg := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("write failed", zap.Error(err))
				sub.stop()
			}
		case <-sub.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			<-readDone
			log.Debug("subscriber disconnected")
			return
		}
	}
}
