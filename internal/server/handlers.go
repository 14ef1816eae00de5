package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

const maxBodyBytes = 1 << 20

const (
	msgNotFound     = "Meeting not found"
	msgInvalid      = "Invalid data: sections must be an array"
	msgInternal     = "Internal server error"
	msgConflict     = "Version conflict"
	msgUnauthorized = "Unauthorized"
)

type messageBody struct {
	Message string `json:"message"`
}

type sectionsBody struct {
	Sections []model.Section `json:"sections"`
}

type successBody struct {
	Success bool `json:"success"`
}

func (s *Server) handleMeeting(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		s.getMeeting(w, r, id)
	case http.MethodPut:
		s.putMeeting(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PUT")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, "Method "+r.Method+" Not Allowed")
	}
}

func (s *Server) getMeeting(w http.ResponseWriter, r *http.Request, id string) {
	log := s.logger.With(zap.String("board", id), zap.String("request_id", requestID(r.Context())))
	if err := store.CheckID(id); err != nil {
		writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
		return
	}

	doc, ok, err := s.store.Load(r.Context(), id)
	switch {
	case err != nil && errors.Is(err, store.ErrCorruptData):
		log.Warn("stored document is corrupt, answering empty", zap.Error(err))
		doc = model.Empty()
	case err != nil:
		log.Error("load failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{msgInternal})
		return
	case !ok:
		writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
		return
	}

	w.Header().Set("ETag", quoteETag(doc.ETag()))
	writeJSON(w, http.StatusOK, sectionsBody{Sections: nonNil(doc.Sections)})
}

func (s *Server) putMeeting(w http.ResponseWriter, r *http.Request, id string) {
	log := s.logger.With(zap.String("board", id), zap.String("request_id", requestID(r.Context())))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{msgInvalid})
		return
	}
	if err := s.validator.check(body); err != nil {
		log.Debug("rejected body", zap.Error(err))
		s.metrics.observeSave("invalid")
		writeJSON(w, http.StatusBadRequest, messageBody{msgInvalid})
		return
	}
	var in struct {
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{msgInvalid})
		return
	}
	sections, err := model.DecodeSections(in.Sections)
	if err != nil {
		log.Debug("rejected sections", zap.Error(err))
		s.metrics.observeSave("invalid")
		writeJSON(w, http.StatusBadRequest, messageBody{msgInvalid})
		return
	}
	if err := store.CheckID(id); err != nil {
		writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
		return
	}
	doc := model.Document{Sections: sections}

	unlock := s.lock(id)
	defer unlock()

	if match := r.Header.Get("If-Match"); match != "" {
		current, ok, err := s.store.Load(r.Context(), id)
		switch {
		case err != nil && errors.Is(err, store.ErrCorruptData):
			current = model.Empty()
		case err != nil:
			log.Error("load for version check failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, messageBody{msgInternal})
			return
		case !ok:
			writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
			return
		}
		if unquoteETag(match) != current.ETag() {
			s.metrics.observeSave("conflict")
			writeJSON(w, http.StatusPreconditionFailed, messageBody{msgConflict})
			return
		}
	}

	if err := s.store.Save(r.Context(), id, doc); err != nil {
		if errors.Is(err, store.ErrWriteRejected) {
			s.metrics.observeSave("not_found")
			writeJSON(w, http.StatusNotFound, messageBody{msgNotFound})
			return
		}
		log.Error("save failed", zap.Error(err))
		s.metrics.observeSave("error")
		writeJSON(w, http.StatusInternalServerError, messageBody{msgInternal})
		return
	}
	s.metrics.observeSave("ok")

	etag := doc.ETag()
	s.hub.Broadcast(id, doc, etag)
	w.Header().Set("ETag", quoteETag(etag))
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(sections []model.Section) []model.Section {
	if sections == nil {
		return []model.Section{}
	}
	return sections
}

func quoteETag(tag string) string { return `"` + tag + `"` }

func unquoteETag(tag string) string {
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		return tag[1 : len(tag)-1]
	}
	return tag
}
