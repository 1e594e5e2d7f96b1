package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// problemDetail is the RFC-7807-style error body: a machine-readable title
// plus a human message, so clients can branch without parsing prose.
type problemDetail struct {
	Status    int    `json:"status"`
	Title     string `json:"title"`
	Detail    string `json:"detail"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

func problem(c echo.Context, status int, title, detail string) error {
	return c.JSON(status, problemDetail{
		Status:    status,
		Title:     title,
		Detail:    detail,
		Path:      c.Request().URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func badRequest(c echo.Context, detail string) error {
	return problem(c, http.StatusBadRequest, "BAD_REQUEST", detail)
}

func notFound(c echo.Context, detail string) error {
	return problem(c, http.StatusNotFound, "NOT_FOUND", detail)
}

func internalError(c echo.Context, detail string) error {
	return problem(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", detail)
}
