package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/rowgate/pkg/db"
	"github.com/edgeflare/rowgate/pkg/docs"
	"github.com/edgeflare/rowgate/pkg/events"
	"github.com/edgeflare/rowgate/pkg/httputil"
)

type mutationResult struct {
	ID           any    `json:"id"`
	Message      string `json:"message"`
	AffectedRows *int64 `json:"affected_rows,omitempty"`
}

func (s *Server) root(_ context.Context, _ *httputil.Request) (*httputil.Response, error) {
	body := map[string]string{
		"message": "Welcome to " + s.cfg.App.Name,
		"version": s.cfg.App.Version,
		"api":     s.cfg.API.Prefix + "/records",
	}
	if s.cfg.Docs.Enabled {
		body["docs"] = s.cfg.Docs.Path
	}
	return httputil.JSONResponse(http.StatusOK, body), nil
}

func (s *Server) health(ctx context.Context, _ *httputil.Request) (*httputil.Response, error) {
	database := "disconnected"
	if s.store.IsConnected(ctx) {
		database = "connected"
	}
	return httputil.JSONResponse(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"database":  database,
	}), nil
}

func (s *Server) docsUI(_ context.Context, _ *httputil.Request) (*httputil.Response, error) {
	page, err := docs.RenderUI(s.cfg.Docs.Title, s.cfg.Docs.Path+"/swagger.json")
	if err != nil {
		return nil, err
	}
	return httputil.HTMLResponse(http.StatusOK, page), nil
}

func (s *Server) openAPI(_ context.Context, _ *httputil.Request) (*httputil.Response, error) {
	return httputil.JSONResponse(http.StatusOK, s.docs.Document()), nil
}

func (s *Server) listRecords(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	result, err := s.store.List(ctx, req.Param(0), db.ParseQuery(req.Query))
	if err != nil {
		return nil, err
	}
	return httputil.JSONResponse(http.StatusOK, result), nil
}

func (s *Server) getRecord(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	record, err := s.store.Get(ctx, req.Param(0), req.Param(1))
	if err != nil {
		return nil, err
	}
	return httputil.JSONResponse(http.StatusOK, record), nil
}

func (s *Server) createRecord(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	table := req.Param(0)
	data, err := db.DecodeData(req.Body)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, table, data)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, table, events.OpCreate, id, data.Map())
	return httputil.JSONResponse(http.StatusCreated, mutationResult{
		ID:      id,
		Message: "Record created successfully",
	}), nil
}

func (s *Server) updateRecord(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	table, id := req.Param(0), req.Param(1)
	data, err := db.DecodeData(req.Body)
	if err != nil {
		return nil, err
	}

	affected, err := s.store.Update(ctx, table, id, data)
	if err != nil {
		return nil, err
	}

	if affected > 0 {
		s.publish(ctx, table, events.OpUpdate, id, data.Map())
	}
	return httputil.JSONResponse(http.StatusOK, mutationResult{
		ID:           id,
		Message:      "Record updated successfully",
		AffectedRows: &affected,
	}), nil
}

func (s *Server) deleteRecord(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	table, id := req.Param(0), req.Param(1)
	affected, err := s.store.Delete(ctx, table, id)
	if err != nil {
		return nil, err
	}

	if affected > 0 {
		s.publish(ctx, table, events.OpDelete, id, nil)
	}
	return httputil.JSONResponse(http.StatusOK, mutationResult{
		ID:           id,
		Message:      "Record deleted successfully",
		AffectedRows: &affected,
	}), nil
}

func (s *Server) listTables(ctx context.Context, _ *httputil.Request) (*httputil.Response, error) {
	tables, err := s.store.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return httputil.JSONResponse(http.StatusOK, map[string]any{"tables": tables}), nil
}

func (s *Server) describeTable(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	table := req.Param(0)
	columns, err := s.store.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, httputil.NewError(http.StatusNotFound, "Table not found")
	}
	return httputil.JSONResponse(http.StatusOK, map[string]any{
		"table":   table,
		"columns": columns,
	}), nil
}
