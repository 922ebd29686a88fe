package handlers

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/nckslvrmn/drop/internal/access"
	"github.com/nckslvrmn/drop/internal/records"
)

type setRequest struct {
	Data        *string         `json:"data"`
	Password    string          `json:"password"`
	SafeIP      string          `json:"safeIP"`
	ExpiredTime json.RawMessage `json:"expiredTime"`
	UUID        string          `json:"uuid"`
}

type getRequest struct {
	UUID         string `json:"uuid"`
	Password     string `json:"password"`
	ShouldDelete bool   `json:"shouldDelete"`
}

type delRequest struct {
	UUID     string `json:"uuid"`
	Password string `json:"password"`
}

type recordResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
	UUID      string `json:"uuid"`
	ExpiredAt string `json:"expiredAt"`
	Password  string `json:"password,omitempty"`
	SafeIP    string `json:"safeIP"`
}

type statusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Version string `json:"version"`
	Active  int64  `json:"active"`
}

// Post dispatches on the mode query parameter.
func (h *Handler) Post(c echo.Context) error {
	switch c.QueryParam("mode") {
	case "set":
		return h.set(c)
	case "get":
		return h.get(c)
	case "del":
		return h.del(c)
	default:
		return messageResponse(c, http.StatusBadRequest, "invalid request mode")
	}
}

func (h *Handler) set(c echo.Context) error {
	var req setRequest
	if err := decodeBody(c, &req); err != nil {
		return messageResponse(c, http.StatusBadRequest, "invalid JSON body")
	}

	ttl, err := parseExpiredTime(req.ExpiredTime)
	if err != nil {
		return messageResponse(c, http.StatusBadRequest, err.Error())
	}

	res, err := h.manager.Write(c.Request().Context(), records.WriteRequest{
		Payload:  req.Data,
		Password: req.Password,
		IPRule:   req.SafeIP,
		TTL:      ttl,
		Key:      req.UUID,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, recordResponse{
		Code:      http.StatusOK,
		Message:   "record stored",
		UUID:      res.Key,
		ExpiredAt: res.ExpiresAt,
		Password:  res.Password,
		SafeIP:    res.IPRule,
	})
}

func (h *Handler) get(c echo.Context) error {
	var req getRequest
	if err := decodeBody(c, &req); err != nil {
		return messageResponse(c, http.StatusBadRequest, "invalid JSON body")
	}

	res, err := h.manager.Read(c.Request().Context(), records.ReadRequest{
		Key:         req.UUID,
		Password:    req.Password,
		CallerIP:    callerIP(c),
		DeleteAfter: req.ShouldDelete,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	message := "record found"
	if res.Deleted {
		message = "record found and deleted"
	}

	return c.JSON(http.StatusOK, recordResponse{
		Code:      http.StatusOK,
		Message:   message,
		Data:      res.Payload,
		UUID:      res.Key,
		ExpiredAt: res.ExpiresAt,
		Password:  res.Password,
		SafeIP:    res.IPRule,
	})
}

func (h *Handler) del(c echo.Context) error {
	var req delRequest
	if err := decodeBody(c, &req); err != nil {
		return messageResponse(c, http.StatusBadRequest, "invalid JSON body")
	}

	err := h.manager.Remove(c.Request().Context(), records.RemoveRequest{
		Key:      req.UUID,
		Password: req.Password,
		CallerIP: callerIP(c),
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return messageResponse(c, http.StatusOK, "record deleted")
}

// Get returns a raw payload when a uuid is given and the service status
// otherwise.
func (h *Handler) Get(c echo.Context) error {
	uuid := c.QueryParam("uuid")
	if uuid == "" {
		return h.status(c)
	}

	payload, err := h.manager.ReadPayload(c.Request().Context(), records.ReadRequest{
		Key:         uuid,
		Password:    c.QueryParam("password"),
		CallerIP:    callerIP(c),
		DeleteAfter: c.QueryParam("shouldDelete") == "true",
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Blob(http.StatusOK, payloadContentType(c.QueryParam("type")), []byte(payload))
}

func (h *Handler) status(c echo.Context) error {
	res, err := h.manager.Status(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}

	active := res.Count
	if !res.Available {
		active = -1
	}

	return c.JSON(http.StatusOK, statusResponse{
		Code:    http.StatusOK,
		Message: h.projectName + " is running",
		Version: Version,
		Active:  active,
	})
}

func callerIP(c echo.Context) string {
	return access.ClientAddr(c.RealIP())
}
