package errno

import "errors"

// code=0 请求成功
// code=4xx 客户端请求错误
// code=5xx 服务器端错误
// code=2xxxx 业务处理错误码

type Errno struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *Errno) Error() string {
	return e.Message
}

var (
	OK = &Errno{Code: 200, Message: "Success"}

	ErrInvalidParam   = &Errno{Code: 400, Message: "Invalid parameter"}
	ErrUnauthorized   = &Errno{Code: 401, Message: "Unauthorized"}
	ErrNotFound       = &Errno{Code: 404, Message: "Not found"}
	ErrTooManyRequest = &Errno{Code: 429, Message: "Too many requests"}

	ErrInternalServer = &Errno{Code: 500, Message: "Internal server error"}
	ErrDatabase       = &Errno{Code: 501, Message: "Database error"}
	ErrUnknown        = &Errno{Code: 510, Message: "Unknown error"}

	// 业务错误码
	ErrMissingParam          = &Errno{Code: 20001, Message: "Missing required parameter"}
	ErrSourceRequired        = &Errno{Code: 20002, Message: "Source is required"}
	ErrUnsupportedKind       = &Errno{Code: 20003, Message: "Unsupported job kind"}
	ErrUnsupportedQuality    = &Errno{Code: 20004, Message: "Unsupported quality"}
	ErrUnsupportedFormat     = &Errno{Code: 20005, Message: "Unsupported output format"}
	ErrJobNotFound           = &Errno{Code: 20008, Message: "Job not found"}
	ErrInvalidJobStatus      = &Errno{Code: 20009, Message: "Invalid job status"}
	ErrQueueFull             = &Errno{Code: 20012, Message: "Task queue is full"}
	ErrNoProgressData        = &Errno{Code: 20020, Message: "No progress data available"}
	ErrOutputNotReady        = &Errno{Code: 20021, Message: "Output is not available"}
	ErrDailyLimitExceeded    = &Errno{Code: 20030, Message: "Daily request limit exceeded"}
	ErrProcessingUnavailable = &Errno{Code: 20031, Message: "Processing unavailable"}
)

// BizError 业务错误，携带错误码与底层原因
type BizError struct {
	*Errno
	cause error
}

// NewBizError 使用错误码包装底层错误
func NewBizError(code *Errno, cause error) *BizError {
	return &BizError{Errno: code, cause: cause}
}

func (e *BizError) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.cause.Error()
}

func (e *BizError) Unwrap() error { return e.cause }

// Is lets errors.Is match on the code.
func (e *BizError) Is(target error) bool {
	if t, ok := target.(*Errno); ok {
		return t == e.Errno
	}
	return false
}

// Decode 解析任意错误为错误码
func Decode(err error) *Errno {
	if err == nil {
		return OK
	}
	var biz *BizError
	if errors.As(err, &biz) {
		return biz.Errno
	}
	var no *Errno
	if errors.As(err, &no) {
		return no
	}
	return ErrInternalServer
}
