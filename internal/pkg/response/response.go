package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

// CodeOf extracts the API code carried by err, if any.
func CodeOf(err error) (uint32, bool) {
	if ce, ok := err.(interface{ Code() uint32 }); ok {
		return ce.Code(), true
	}
	return 0, false
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Page wraps a list payload with its paging cursor.
func Page(c *gin.Context, items interface{}, next string) {
	proxyutil.SuccessJson(c, gin.H{"items": items, "next": next})
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}
