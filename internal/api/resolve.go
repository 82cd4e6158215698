package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/feedscout/internal/aggregator"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/resolver"
)

type resolutionResponse struct {
	Feed      feed.Feed         `json:"feed"`
	Album     *feed.Album       `json:"album"`
	MatchedBy resolver.Strategy `json:"matchedBy"`
}

func (s *Server) resolveAlbum(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Resolver.Resolve(r.Context(), chi.URLParam(r, "externalId"))
	s.writeResolution(w, r, res, err)
}

func (s *Server) resolvePublisher(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Resolver.ResolvePublisher(r.Context(), chi.URLParam(r, "externalId"))
	s.writeResolution(w, r, res, err)
}

func (s *Server) writeResolution(w http.ResponseWriter, r *http.Request, res resolver.Resolution, err error) {
	if errors.Is(err, resolver.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	album, err := s.deps.Resolver.Album(r.Context(), res)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse{Feed: res.Feed, Album: album, MatchedBy: res.Strategy})
}

type publisherList struct {
	Publishers []aggregator.Publisher `json:"publishers"`
	Count      int                    `json:"count"`
}

func (s *Server) listPublishers(w http.ResponseWriter, r *http.Request) {
	publishers, err := s.deps.Publishers.FromRegistry(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publisherList{Publishers: publishers, Count: len(publishers)})
}

func (s *Server) getPublisher(w http.ResponseWriter, r *http.Request) {
	publisher, err := s.deps.Publishers.Publisher(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publisher)
}
