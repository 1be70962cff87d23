package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medkit-service/pkg/errno"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{Code: errno.OK.Code, Message: errno.OK.Message, Data: data})
}

// Failed 失败响应，HTTP 状态码由错误码推导
func Failed(ctx *gin.Context, err error) {
	no := errno.Decode(err)
	msg := no.Message
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	ctx.JSON(httpStatus(no), Response{Code: no.Code, Message: msg})
}

// FailedWithData 失败响应并附带数据, e.g. the record a failed request still created.
func FailedWithData(ctx *gin.Context, err error, data interface{}) {
	no := errno.Decode(err)
	msg := no.Message
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	ctx.JSON(httpStatus(no), Response{Code: no.Code, Message: msg, Data: data})
}

func httpStatus(no *errno.Errno) int {
	switch no {
	case errno.ErrInvalidParam, errno.ErrMissingParam, errno.ErrSourceRequired,
		errno.ErrUnsupportedKind, errno.ErrUnsupportedQuality, errno.ErrUnsupportedFormat:
		return http.StatusBadRequest
	case errno.ErrNotFound, errno.ErrJobNotFound, errno.ErrNoProgressData:
		return http.StatusNotFound
	case errno.ErrInvalidJobStatus, errno.ErrOutputNotReady:
		return http.StatusConflict
	case errno.ErrDailyLimitExceeded, errno.ErrTooManyRequest:
		return http.StatusTooManyRequests
	case errno.ErrProcessingUnavailable, errno.ErrQueueFull:
		return http.StatusServiceUnavailable
	}
	if no.Code >= 400 && no.Code < 600 {
		return no.Code
	}
	return http.StatusInternalServerError
}
