package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

const (
	defaultEntityLimit = 100
	maxEntityLimit     = 1000
)

// listEntities handles GET /v1/entities?kind=&open=&province=&field=&limit=.
// open=true keeps only entities accepting applications today.
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	filter, err := s.entityFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	entities, err := s.entities.List(ctx, filter)
	if err != nil {
		s.logger.Error("list entities failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}
	if entities == nil {
		entities = []opportunity.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

func (s *Server) entityFilter(r *http.Request) (store.EntityFilter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(r, defaultEntityLimit, maxEntityLimit)
	if err != nil {
		return store.EntityFilter{}, err
	}
	filter := store.EntityFilter{
		Province:     strings.TrimSpace(q.Get("province")),
		FieldOfStudy: strings.TrimSpace(q.Get("field")),
		Limit:        limit,
	}
	switch kind := opportunity.Kind(strings.ToLower(q.Get("kind"))); kind {
	case "":
	case opportunity.KindInstitution, opportunity.KindProgram, opportunity.KindBursary:
		filter.Kind = kind
	default:
		return store.EntityFilter{}, errors.New("invalid kind")
	}
	if raw := q.Get("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return store.EntityFilter{}, errors.New("invalid open flag")
		}
		if open {
			today := opportunity.Day(s.clock.Now())
			filter.OpenOn = &today
		}
	}
	return filter, nil
}
