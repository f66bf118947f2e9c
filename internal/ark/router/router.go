// Package router exposes the command table over a loopback HTTP bridge.
package router

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/handler"
	"github.com/kart-io/ark/pkg/errors"
)

// NewEngine builds the gin engine serving POST /api/v1/:library/:action.
// maxBodyBytes <= 0 leaves payloads unbounded.
func NewEngine(d *handler.Dispatcher, maxBodyBytes int64) *gin.Engine {
	engine := gin.New()

	// 中间件顺序：Recovery -> RequestID -> Logger
	engine.Use(Recovery(), RequestID(), Logger())

	engine.NoRoute(func(c *gin.Context) {
		fail(c, errors.ErrNotFound.WithMessagef("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/:library/:action", dispatch(d, maxBodyBytes))
		v1.GET("/commands", commands(d))
	}

	logger.Infow("Command routes registered", "commands", len(d.Commands()))
	return engine
}

func dispatch(d *handler.Dispatcher, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := c.Request.Body
		if maxBodyBytes > 0 {
			body = http.MaxBytesReader(c.Writer, body, maxBodyBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			fail(c, errors.ErrBadRequest.WithCause(err))
			return
		}

		cmd := handler.Command{Library: c.Param("library"), Action: c.Param("action")}
		result, err := d.Dispatch(c.Request.Context(), cmd, payload)
		if err != nil {
			logger.Debugw("Command failed",
				"command", cmd.String(),
				"request_id", GetRequestID(c),
				"error", err.Error(),
			)
			fail(c, err)
			return
		}
		ok(c, result)
	}
}

func commands(d *handler.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := make([]string, 0, len(d.Commands()))
		for _, cmd := range d.Commands() {
			names = append(names, cmd.String())
		}
		ok(c, names)
	}
}
