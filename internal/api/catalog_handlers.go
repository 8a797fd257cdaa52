package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/qr"
	"github.com/gorilla/mux"
)

// pathView is a catalog record as listed to clients.
type pathView struct {
	models.PathRecord
	Mode models.ModeKind `json:"mode"`
}

type healthView struct {
	Routes   int `json:"routes"`
	Dropped  int `json:"dropped"`
	Sessions int `json:"sessions"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	cat := s.manager.Catalog()
	writeJSONResponse(w, http.StatusOK, models.Success(healthView{
		Routes:   cat.Len(),
		Dropped:  cat.Dropped(),
		Sessions: s.manager.Len(),
	}))
}

func (s *Server) listPathsHandler(w http.ResponseWriter, r *http.Request) {
	cat := s.manager.Catalog()
	records := cat.All()
	views := make([]pathView, 0, len(records))
	for _, rec := range records {
		route, err := cat.LoadPath(rec.ID)
		if err != nil {
			continue
		}
		views = append(views, pathView{PathRecord: rec, Mode: route.Mode.Kind()})
	}
	slog.Debug("Server.listPathsHandler: listing routes", "count", len(views))
	writeJSONResponse(w, http.StatusOK, models.Success(views))
}

func (s *Server) getPathHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	route, err := s.manager.Catalog().LoadPath(id)
	if err != nil {
		slog.Debug("Server.getPathHandler: route not found", "id", id)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Path not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pathView{PathRecord: route.PathRecord, Mode: route.Mode.Kind()}))
}

// pathQRHandler renders the link that opens a route as a text QR code, ready to print
// on a sign.
func (s *Server) pathQRHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cat := s.manager.Catalog()
	if _, err := cat.LoadPath(id); err != nil && !cat.IsGenderedRedirect(id) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Path not found"))
		return
	}
	link, err := qr.RouteURL(s.publicBaseURL, id)
	if err != nil {
		slog.Warn("Server.pathQRHandler: cannot build route link", "error", err, "id", id)
		if errors.Is(err, qr.ErrEmptyBase) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Public base URL is not configured"))
			return
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Invalid public base URL"))
		return
	}
	var buf bytes.Buffer
	buf.WriteString(link)
	buf.WriteString("\n\n")
	qr.Write(&buf, link)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Server.pathQRHandler: failed to write QR code", "error", err)
	}
}

func (s *Server) destinationsHandler(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeJSONResponse(w, http.StatusOK, models.Success(s.directory.Categories))
		return
	}
	c, ok := s.directory.Category(category)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Category not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

type reloadView struct {
	Routes      int                  `json:"routes"`
	Dropped     int                  `json:"dropped"`
	Unreachable []models.Destination `json:"unreachable,omitempty"`
}

// reloadCatalogHandler re-reads the catalog source. Open sessions keep their route.
func (s *Server) reloadCatalogHandler(w http.ResponseWriter, r *http.Request) {
	if s.catalogSource == "" {
		writeJSONResponse(w, http.StatusConflict, models.Error("Catalog source is not configured"))
		return
	}
	cat, err := catalog.Load(r.Context(), s.catalogSource, s.catalogOpts...)
	if err != nil {
		slog.Error("Server.reloadCatalogHandler: reload failed", "error", err, "source", s.catalogSource)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to reload catalog"))
		return
	}
	s.manager.SetCatalog(cat)
	unreachable := s.directory.Unreachable(cat)
	if len(unreachable) > 0 {
		slog.Warn("Server.reloadCatalogHandler: destinations without a route", "count", len(unreachable))
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Catalog reloaded", reloadView{
		Routes:      cat.Len(),
		Dropped:     cat.Dropped(),
		Unreachable: unreachable,
	}))
}
