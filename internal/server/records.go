package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/syncache/internal/realtime"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/remote"
	"github.com/roach88/syncache/internal/store"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context(), r.PathValue("name"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	rec, err := s.store.Insert(r.Context(), name, body)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.publish(r, name, realtime.KindInsert, rec)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	rec, err := s.store.Update(r.Context(), name, r.PathValue("id"), body)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.publish(r, name, realtime.KindUpdate, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	if err := s.store.Delete(r.Context(), name, id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.publish(r, name, realtime.KindDelete, record.Record{record.IDField: id})
	w.WriteHeader(http.StatusNoContent)
}

// publish broadcasts a write, stamped with the caller's origin id.
func (s *Server) publish(r *http.Request, collection string, kind realtime.Kind, rec record.Record) {
	s.hub.Broadcast(realtime.Message{
		Type:   collection,
		Event:  kind,
		Data:   rec,
		Origin: r.Header.Get(remote.OriginHeader),
	})
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	s.logger.Error("store", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "storage failure")
}

func decodeBody(w http.ResponseWriter, r *http.Request) (record.Record, bool) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON object: "+err.Error())
		return nil, false
	}
	if m == nil {
		m = map[string]any{}
	}
	return record.Record(m), true
}
