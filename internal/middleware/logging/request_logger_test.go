package loggingmw

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/require"
)

func newLoggedEcho(buf *bytes.Buffer) *echo.Echo {
	e := echo.New()
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	e.Use(middleware.RequestID(), RequestLogger(logger))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestRequestLoggerUsesGeneratedRequestID(t *testing.T) {
	var buf bytes.Buffer
	e := newLoggedEcho(&buf)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	rid := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, rid)
	require.Contains(t, buf.String(), `"request_id":"`+rid+`"`)
}

func TestRequestLoggerKeepsClientRequestID(t *testing.T) {
	var buf bytes.Buffer
	e := newLoggedEcho(&buf)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "client-id-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Contains(t, buf.String(), `"request_id":"client-id-123"`)
	require.Contains(t, buf.String(), `"status":200`)
}
