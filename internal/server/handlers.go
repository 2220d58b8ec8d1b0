package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/schedule"
)

// settingsFamilies names the documents served under /api/settings.
var settingsFamilies = map[string]bool{
	"system":  true,
	"display": true,
	"theme":   true,
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"status": status,
	})
}

// getDocument serves one configuration document, stamped with its
// identity and current revision.
func (s *Server) getDocument(w http.ResponseWriter, obj *config.Object, id string) {
	hash, content, err := obj.Get()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if content == nil {
		s.writeError(w, fmt.Errorf("document %q: %w", id, errs.ErrNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, config.Stamp(content, id, hash))
}

// putDocument saves one configuration document. The body must carry the
// document's identity and the revision it was read at; a stale revision
// gets 409 with that revision echoed back so the client can re-fetch and
// retry.
func (s *Server) putDocument(w http.ResponseWriter, r *http.Request, obj *config.Object, id string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("decode body: %w: %w", err, errs.ErrInvalidInput))
		return
	}
	rev, _ := body[config.RevKey].(string)
	if rev == "" {
		s.writeError(w, fmt.Errorf("missing %s: %w", config.RevKey, errs.ErrInvalidInput))
		return
	}
	if bodyID, _ := body[config.IDKey].(string); bodyID != id {
		s.writeError(w, fmt.Errorf("document id %q does not match %q: %w", bodyID, id, errs.ErrInvalidInput))
		return
	}

	content := config.Strip(body)
	ok, newHash, err := obj.Save(rev, content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":  errs.ErrConcurrency.Error(),
			"rev":    rev,
			"status": http.StatusConflict,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, config.Stamp(content, id, newHash))
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !settingsFamilies[name] {
		s.writeError(w, fmt.Errorf("settings %q: %w", name, errs.ErrNotFound))
		return
	}
	settings := s.cfg.Manager.Settings()
	s.getDocument(w, settings.Object(name), settings.DocumentID(name))
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !settingsFamilies[name] {
		s.writeError(w, fmt.Errorf("settings %q: %w", name, errs.ErrNotFound))
		return
	}
	settings := s.cfg.Manager.Settings()
	s.putDocument(w, r, settings.Object(name), settings.DocumentID(name))
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	content, err := s.cfg.Manager.Static().Schema(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, content)
}

// getPluginSchema is reserved for plugin-declared settings schemas.
func (s *Server) getPluginSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotImplemented, map[string]any{
		"error":  "plugin schemas are not implemented",
		"status": http.StatusNotImplemented,
	})
}

func (s *Server) listPlugins(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Plugins.Descriptors())
}

func (s *Server) getPluginSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.cfg.Plugins.Has(id) {
		s.writeError(w, fmt.Errorf("plugin %q: %w", id, errs.ErrNotFound))
		return
	}
	plugins := s.cfg.Manager.Plugins()
	s.getDocument(w, plugins.SettingsObject(id), plugins.SettingsID(id))
}

func (s *Server) putPluginSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.cfg.Plugins.Has(id) {
		s.writeError(w, fmt.Errorf("plugin %q: %w", id, errs.ErrNotFound))
		return
	}
	plugins := s.cfg.Manager.Plugins()
	s.putDocument(w, r, plugins.SettingsObject(id), plugins.SettingsID(id))
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Sources.Descriptors())
}

func (s *Server) getSourceSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.cfg.Sources.Has(id) {
		s.writeError(w, fmt.Errorf("data source %q: %w", id, errs.ErrNotFound))
		return
	}
	sources := s.cfg.Manager.Sources()
	s.getDocument(w, sources.SettingsObject(id), sources.SettingsID(id))
}

func (s *Server) putSourceSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.cfg.Sources.Has(id) {
		s.writeError(w, fmt.Errorf("data source %q: %w", id, errs.ErrNotFound))
		return
	}
	sources := s.cfg.Manager.Sources()
	s.putDocument(w, r, sources.SettingsObject(id), sources.SettingsID(id))
}

// listSchedulesByType serves the stored schedule documents of one type
// URN, each stamped with its moniker base name and revision.
func (s *Server) listSchedulesByType(w http.ResponseWriter, urn string) {
	entries, err := s.cfg.Manager.Schedules().List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if t, _ := entry.Content["type"].(string); t != urn {
			continue
		}
		out = append(out, config.Stamp(entry.Content, path.Base(entry.Moniker), entry.Hash))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPlaylists(w http.ResponseWriter, _ *http.Request) {
	s.listSchedulesByType(w, schedule.TypePlaylist)
}

func (s *Server) listTimerTasks(w http.ResponseWriter, _ *http.Request) {
	s.listSchedulesByType(w, schedule.TypeTasks)
}

// renderSchedule flattens the schedule window: ?start=YYYY-MM-DD (default
// today) and ?days=N (default 7).
func (s *Server) renderSchedule(w http.ResponseWriter, r *http.Request) {
	start := s.cfg.Clock.Now()
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			s.writeError(w, fmt.Errorf("parse start %q: %w: %w", raw, err, errs.ErrInvalidInput))
			return
		}
		start = parsed
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, fmt.Errorf("parse days %q: %w: %w", raw, err, errs.ErrInvalidInput))
			return
		}
		days = parsed
	}

	entries, err := s.cfg.Manager.Schedules().List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	docs := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, entry.Content)
	}
	set, err := schedule.NewSet(docs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	window, err := set.Render(start, days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, window)
}
