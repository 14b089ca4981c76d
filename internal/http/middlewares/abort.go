package middlewares

import "github.com/gin-gonic/gin"

// abortWithError writes the same envelope the handlers use, so a rejected
// request looks identical whether it died in middleware or in a handler.
func abortWithError(c *gin.Context, status int, code, message string) {
	reqID := c.GetString(CtxRequestID)
	if reqID == "" {
		reqID = c.GetHeader(requestIDHeader)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"ok":      false,
		"message": message,
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": reqID,
		},
	})
}
