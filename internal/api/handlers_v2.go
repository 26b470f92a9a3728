package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleLockStatus reports whether a named lock namespace is managed by
// this process.
func (s *Server) handleLockStatus(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.locks[name]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no lock namespace named " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lock": name, "managed": true})
}
