package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope of every API reply.
type Response struct {
	StatusCode int    `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      any    `json:"error,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func newSuccess(data any) *Response {
	return &Response{
		Success:    true,
		StatusCode: fiber.StatusOK,
		Data:       data,
	}
}

func newFailed(code int, msg string, detail any) *Response {
	return &Response{
		Success:    false,
		StatusCode: code,
		Message:    msg,
		Error:      detail,
	}
}

// Send writes the response with its status code.
func (r *Response) Send(c *fiber.Ctx) error {
	return c.Status(r.StatusCode).JSON(r)
}
