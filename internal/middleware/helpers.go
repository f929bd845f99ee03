// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetOperatorID gets the authenticated operator's identity from context.
func GetOperatorID(c *gin.Context) (string, bool) {
	v, exists := c.Get("operator_id")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
