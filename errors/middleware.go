package errors

import (
	"github.com/gin-gonic/gin"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ToGQL renders the error in the GraphQL error shape.
func (e *Error) ToGQL() *gqlerror.Error {
	return &gqlerror.Error{
		Message:    e.Message,
		Extensions: e.Extensions(),
	}
}

// Abort fails the whole request with the status derived from the error kind.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Middleware renders errors attached with c.Error as a whole-request failure.
// onInternal, when set, receives every 500-class error.
func Middleware(onInternal func(c *gin.Context, err *Error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := From(c.Errors.Last().Err)
		if appErr.Internal() && onInternal != nil {
			onInternal(c, appErr)
		}

		c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{
			"errors": gqlerror.List{appErr.ToGQL()},
		})
	}
}
