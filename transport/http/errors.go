package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/assetgate/core"
)

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindUnauthenticated, core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindBadRequest:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the public form of err. Internal errors never
// reach the client.
func (h *AuthHandlers) abortWithError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if kind == core.KindInternal {
		h.logger.Error("HTTP: request failed", "path", c.FullPath(), "error", err.Error())
		msg = "Internal error"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
