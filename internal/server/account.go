package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
)

// HandleAccountState returns the resolved lifecycle state for the
// authenticated account.
func (s *Server) HandleAccountState(c *gin.Context) {
	state, ok := lifecycleFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, accountdomain.StateOf(state))
}
