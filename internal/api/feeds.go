package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
)

type feedList struct {
	Feeds []feed.Feed `json:"feeds"`
	Count int         `json:"count"`
}

type createFeedRequest struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

type updateFeedRequest struct {
	Title    *string `json:"title"`
	Type     *string `json:"type"`
	Priority *string `json:"priority"`
	Status   *string `json:"status"`
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	feeds, err := s.deps.Registry.GetAll(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedList{Feeds: feeds, Count: len(feeds)})
}

func filterFromQuery(r *http.Request) (registry.Filter, error) {
	q := r.URL.Query()
	var filter registry.Filter
	if raw := q.Get("status"); raw != "" {
		status, err := feed.ParseStatus(raw)
		if err != nil {
			return registry.Filter{}, err
		}
		filter.Status = status
	}
	if raw := q.Get("type"); raw != "" {
		kind, err := feed.ParseKind(raw)
		if err != nil {
			return registry.Filter{}, err
		}
		filter.Kind = kind
	}
	if raw := q.Get("priority"); raw != "" {
		priority, err := feed.ParsePriority(raw)
		if err != nil {
			return registry.Filter{}, err
		}
		filter.Priority = priority
	}
	return filter, nil
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	created, err := s.deps.Registry.Add(r.Context(), feed.Feed{
		OriginalURL: req.URL,
		Kind:        feed.Kind(req.Type),
		Title:       req.Title,
		Priority:    feed.Priority(req.Priority),
		Status:      feed.Status(req.Status),
		Source:      feed.SourceManual,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateFeed(w http.ResponseWriter, r *http.Request) {
	var req updateFeedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	patch := registry.Patch{Title: req.Title}
	if req.Type != nil {
		kind := feed.Kind(*req.Type)
		patch.Kind = &kind
	}
	if req.Priority != nil {
		priority := feed.Priority(*req.Priority)
		patch.Priority = &priority
	}
	if req.Status != nil {
		status := feed.Status(*req.Status)
		patch.Status = &status
	}
	updated, err := s.deps.Registry.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
