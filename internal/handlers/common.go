package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/nckslvrmn/drop/internal/records"
)

// Version is reported by the status endpoint.
const Version = "1.2.0"

var contentTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9.+-]{1,32}$`)

type Handler struct {
	manager     *records.Manager
	projectName string
}

func New(manager *records.Manager, projectName string) *Handler {
	return &Handler{manager: manager, projectName: projectName}
}

// Register mounts the API on the root path. Methods other than GET, POST
// and OPTIONS answer 405.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/", h.Post)
	e.GET("/", h.Get)
	e.OPTIONS("/", h.Options)
	e.Match([]string{
		http.MethodHead,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodTrace,
	}, "/", h.MethodNotAllowed)
}

func (h *Handler) Options(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"code": http.StatusOK})
}

func (h *Handler) MethodNotAllowed(c echo.Context) error {
	return messageResponse(c, http.StatusMethodNotAllowed, "method not allowed")
}

type messageBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func messageResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, messageBody{Code: status, Message: message})
}

// errorResponse writes err as a {code, message} body. Backend failures are
// logged and reported without detail.
func errorResponse(c echo.Context, err error) error {
	var rerr *records.Error
	if !errors.As(err, &rerr) || rerr.Kind == records.KindBackend {
		c.Logger().Error(err)
		return messageResponse(c, http.StatusInternalServerError, "internal server error")
	}
	return messageResponse(c, rerr.Status(), rerr.Message)
}

func decodeBody(c echo.Context, target any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseExpiredTime accepts a millisecond TTL as a JSON number or a numeric
// string. A missing or null value returns nil.
func parseExpiredTime(raw json.RawMessage) (*time.Duration, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	ms, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return nil, fmt.Errorf("invalid expiredTime")
	}
	if math.Abs(ms) > float64(math.MaxInt64/int64(time.Millisecond)) {
		return nil, fmt.Errorf("expiredTime is too large")
	}

	ttl := time.Duration(int64(ms)) * time.Millisecond
	return &ttl, nil
}

func payloadContentType(kind string) string {
	if contentTypeRegex.MatchString(kind) {
		return "text/" + kind
	}
	return "text/plain"
}
