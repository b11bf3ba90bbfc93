package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/david/opportunity-importer/internal/db"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func queryInt(c echo.Context, name string, def int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleListStaging(c echo.Context) error {
	res, err := s.staging.ListTempRecords(c.Request().Context(), db.ListParams{
		Query:  c.QueryParam("q"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func parseRecordID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid record id")
	}
	return id, nil
}

func (s *Server) handleGetStaging(c echo.Context) error {
	id, err := parseRecordID(c)
	if err != nil {
		return err
	}
	rec, err := s.staging.GetTempRecord(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSimilarStaging(c echo.Context) error {
	id, err := parseRecordID(c)
	if err != nil {
		return err
	}
	recs, err := s.staging.FindSimilar(c.Request().Context(), id, queryInt(c, "limit", 5))
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) handleListImportRuns(c echo.Context) error {
	runs, err := s.staging.ListImportRuns(c.Request().Context(), queryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}
