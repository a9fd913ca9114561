// Package apperr 定义了跨管道统一的错误分类。
//
// 检索与入库管道依赖这套分类来决定重试、降级还是直接失败：
// 瞬时错误可重试，响应格式错误不可重试，索引错误按批次隔离，
// 校验错误在任何远程调用之前被拒绝。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 标识错误的类别。
type Kind int

const (
	// KindTransient 表示网络/超时类瞬时错误，可带退避重试。
	KindTransient Kind = iota
	// KindBadResponse 表示远程服务返回了格式错误或非预期的响应，不重试。
	KindBadResponse
	// KindIndex 表示向量索引的读写失败。
	KindIndex
	// KindValidation 表示请求在任何远程调用之前就被拒绝（空查询、不支持的文件类型等）。
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindBadResponse:
		return "bad_response"
	case KindIndex:
		return "index"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error 携带错误类别与来源服务标识。
type Error struct {
	Kind     Kind
	Provider string // 出错的远程服务，例如 "embedding"、"rerank"
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s]: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 构造一个带类别的错误。
func New(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Newf 构造一个带类别的错误，消息使用格式化字符串。
func Newf(kind Kind, provider, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Provider: provider, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回 err 的错误类别；无法识别时返回 ok=false。
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// IsTransient 判断 err 是否是可重试的瞬时错误。
func IsTransient(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransient
}

// IsValidation 判断 err 是否是校验错误。
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}
