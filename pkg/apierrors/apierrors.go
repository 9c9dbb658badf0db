package apierrors

import (
	"errors"

	"google.golang.org/grpc/codes"
)

// Code 表示统一错误码。
type Code string

const (
	// CodeInvalidIntent 表示请求意图无法编码（缺少 to、value 非法等），发生在任何副作用之前。
	CodeInvalidIntent Code = "INVALID_INTENT"
	// CodeDispatchFailed 表示当前环境缺少可用 handler 或 handler 执行失败。
	CodeDispatchFailed Code = "DISPATCH_FAILED"
	// CodeCorrelationFailed 表示 topic 未能给出响应（取消、超时、格式错误）。
	CodeCorrelationFailed Code = "CORRELATION_FAILED"
	// CodeVerificationFailed 表示收到了响应，但凭证校验未通过。
	CodeVerificationFailed Code = "VERIFICATION_FAILED"
	// CodeInvalidArgument 用于 relay HTTP 接口的参数错误。
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeTopicNotFound 表示 relay 上不存在该 topic。
	CodeTopicNotFound Code = "TOPIC_NOT_FOUND"
)

var httpStatusMap = map[Code]int{
	CodeInvalidIntent:      400,
	CodeInvalidArgument:    400,
	CodeVerificationFailed: 401,
	CodeTopicNotFound:      404,
	CodeCorrelationFailed:  504,
	CodeDispatchFailed:     500,
}

var grpcStatusMap = map[Code]codes.Code{
	CodeInvalidIntent:      codes.InvalidArgument,
	CodeInvalidArgument:    codes.InvalidArgument,
	CodeVerificationFailed: codes.Unauthenticated,
	CodeTopicNotFound:      codes.NotFound,
	CodeCorrelationFailed:  codes.DeadlineExceeded,
	CodeDispatchFailed:     codes.FailedPrecondition,
}

// Error 表示带统一错误码的错误，可包装底层原因。
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New 创建一个新的错误。
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap 创建携带底层原因的错误，errors.Is/As 可穿透到 cause。
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap 暴露底层原因。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// FromError 尝试从通用 error 中解析 *Error。
func FromError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode 判断 err 链上是否存在指定错误码。
func HasCode(err error, code Code) bool {
	apiErr, ok := FromError(err)
	return ok && apiErr.Code == code
}

// HTTPStatus 返回对应的 HTTP 状态码，未知错误默认 500。
func HTTPStatus(code Code) int {
	if status, ok := httpStatusMap[code]; ok {
		return status
	}
	return 500
}

// GRPCStatus 返回对应的 gRPC code，未知错误默认 Internal。
func GRPCStatus(code Code) codes.Code {
	if status, ok := grpcStatusMap[code]; ok {
		return status
	}
	return codes.Internal
}
