package web

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope helpers. Most endpoints answer with
// {status, data} on success and {status, message, errors} on failure;
// internal detail is echoed back only when debug mode is on.

func (s *Server) success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"status": true,
		"data":   data,
	})
}

func (s *Server) fail(c *gin.Context, code int, message string, errs any) {
	if errs == nil {
		errs = gin.H{}
	}
	c.JSON(code, gin.H{
		"status":  false,
		"message": message,
		"errors":  errs,
	})
}

func (s *Server) defaultError(c *gin.Context, err error) {
	log.Printf("[web] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)

	errs := any(gin.H{})
	if s.cfg.Debug {
		errs = err.Error()
	}
	s.fail(c, http.StatusInternalServerError, "Internal server error", errs)
}
