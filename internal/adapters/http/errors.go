package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, core.CodeRoomNotFound
	case errors.Is(err, domain.ErrRoomInactive):
		return http.StatusBadRequest, core.CodeRoomInactive
	case errors.Is(err, domain.ErrUserNotWaiting):
		return http.StatusNotFound, core.CodeUserNotWaiting
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, core.CodeUserNotFound
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return http.StatusBadRequest, core.CodeInvalidRequest
	case errors.Is(err, domain.ErrIdentityProvider):
		return http.StatusInternalServerError, core.CodeIdentityUnavailable
	default:
		return http.StatusInternalServerError, core.CodeInternal
	}
}

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, core.ErrorResponse{Error: msg, Code: code})
}

// writeError maps a service error to its HTTP form. Internal failures are
// logged here and never leak their message.
func writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	switch domain.KindOf(err) {
	case domain.KindUpstream:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("identity provider failure")
		msg = "failed to issue calling identity"
	case domain.KindInternal, domain.KindInvalidState:
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
			msg = "internal error"
		}
	}
	abortWith(c, status, code, msg)
}
