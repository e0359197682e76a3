package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/registry"
)

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateDevice),
		errors.Is(err, device.ErrPoweredOff),
		errors.Is(err, device.ErrNotLinked),
		errors.Is(err, device.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, device.ErrInvalidArgument),
		errors.Is(err, device.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrSendFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusBadGateway:
		return "send_failed"
	}
	return "internal_error"
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errorCode(status),
		"message": err.Error(),
	})
}
