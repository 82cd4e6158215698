package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedscout/internal/discovery"
	"github.com/JakeFAU/feedscout/internal/feed"
)

type discoverRequest struct {
	URL       string `json:"url"`
	Recursive *bool  `json:"recursive"`
	Depth     *int   `json:"depth"`
	AutoAdd   bool   `json:"autoAdd"`
	Priority  string `json:"priority"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	opts, err := s.discoverOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.deps.Discoverer.Discover(r.Context(), req.URL, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("discovery finished",
		zap.String("run_id", report.RunID),
		zap.String("seed_url", req.URL),
		zap.Int("total", report.Stats.Total),
		zap.Int("added", report.Stats.Added),
		zap.String("request_id", RequestID(r.Context())),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) discoverOptions(req discoverRequest) (discovery.Options, error) {
	if strings.TrimSpace(req.URL) == "" {
		return discovery.Options{}, errors.New("url is required")
	}
	opts := discovery.Options{
		Recursive:       valueOrDefault(req.Recursive, s.cfg.RecursiveDefault),
		MaxDepth:        valueOrDefault(req.Depth, s.cfg.DefaultDepth),
		AutoAdd:         req.AutoAdd,
		DefaultPriority: s.cfg.DefaultPriority,
	}
	if req.Priority != "" {
		priority, err := feed.ParsePriority(req.Priority)
		if err != nil {
			return discovery.Options{}, err
		}
		opts.DefaultPriority = priority
	}
	return opts, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
