package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lox/drillprep/internal/models"
)

type channelRequest struct {
	ID           string   `json:"id" validate:"omitempty,max=32"`
	StandardName string   `json:"standardName" validate:"required,max=64"`
	Aliases      []string `json:"aliases" validate:"dive,required,max=128"`
}

func (c channelRequest) definition() models.ChannelDefinition {
	d := models.ChannelDefinition{
		ID:           c.ID,
		StandardName: strings.TrimSpace(c.StandardName),
	}
	for _, a := range c.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			d.Aliases = append(d.Aliases, a)
		}
	}
	return d
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	if term := r.URL.Query().Get("search"); term != "" {
		cat, err := s.store.Catalog()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cat.Search(term)))
		return
	}
	defs, err := s.store.ListChannels()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

func (s *Server) handleSharedAliases(w http.ResponseWriter, r *http.Request) {
	cat, err := s.store.Catalog()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cat.SharedAliases()))
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetChannel(chi.URLParam(r, "channelID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d := req.definition()

	cat, err := s.store.Catalog()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, exists := cat.Lookup(d.StandardName); exists {
		writeError(w, r, fmt.Errorf("%w: channel %s already exists", errConflict, d.StandardName))
		return
	}
	if d.ID != "" {
		if _, err := s.store.GetChannel(d.ID); err == nil {
			writeError(w, r, fmt.Errorf("%w: channel id %s already exists", errConflict, d.ID))
			return
		}
	}

	created, err := s.store.CreateChannel(d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d := req.definition()
	d.ID = chi.URLParam(r, "channelID")

	if err := s.store.UpdateChannel(d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteChannel(chi.URLParam(r, "channelID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
