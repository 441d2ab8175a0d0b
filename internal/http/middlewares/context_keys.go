package middlewares

import "github.com/gin-gonic/gin"

const (
	CtxRequestID = "request_id"
	ctxViewerKey = "auth.viewer"
)

// errorBody mirrors the handlers' error envelope so aborts from middleware
// look the same to clients.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(c),
	})
}

func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(CtxRequestID)
}
