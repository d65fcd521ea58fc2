package errs

import (
	"errors"
	"fmt"
)

// Kind 错误分类，Handler 按分类映射 HTTP 状态码
type Kind int

const (
	KindValidation Kind = iota + 1 // 参数错误，未产生任何副作用
	KindConflict                   // 唯一性冲突 / 并发互斥冲突
	KindNotFound                   // 资源不存在
	KindDependency                 // 外部依赖 (搜索引擎/运行时) 不可达或返回失败
	KindRemoteWrite                // Pipeline 远程部署写入失败
	KindPartial                    // 主操作成功，但清理类副操作失败
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Dependency(message string, cause error) *Error {
	return &Error{Kind: KindDependency, Message: message, Cause: cause}
}

func RemoteWrite(message string, cause error) *Error {
	return &Error{Kind: KindRemoteWrite, Message: message, Cause: cause}
}

func Partial(message string, cause error) *Error {
	return &Error{Kind: KindPartial, Message: message, Cause: cause}
}

// KindOf 取出错误分类，非本包错误返回 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
