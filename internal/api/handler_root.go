package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Root is the service banner a human hitting the bare origin in a browser
// sees — it carries no operational meaning beyond confirming the process
// answering this address is this one.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "waterhub",
		"status":  "running",
		"server":  h.serverTag,
	})
}
