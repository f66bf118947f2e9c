package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/ark/pkg/errors"
)

// Response is the envelope written for every command.
type Response struct {
	// Data is the command result; absent on failure.
	Data interface{} `json:"data,omitempty"`

	// Error describes why the command failed.
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the wire form of an Errno.
type ErrorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`

	// Disconnect tells the UI to drop the connection the command targeted.
	Disconnect bool `json:"disconnect,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Data: data})
}

func fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	c.JSON(e.HTTPStatus(), Response{Error: &ErrorBody{
		Code:       e.Code,
		Kind:       e.Kind,
		Message:    e.Error(),
		Disconnect: e.Disconnects(),
	}})
}
