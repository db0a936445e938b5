// Package apperr 定义跨层共享的错误分类，handler 通过 errors.Is / errors.As 映射为响应码。
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuth               = errors.New("authentication required")
	ErrForbidden          = errors.New("permission denied")
	ErrNotFound           = errors.New("resource not found")
	ErrAnalysisInProgress = errors.New("an analysis is already running for this user")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrConfiguration      = errors.New("service is not configured")
	ErrDuplicateEntry     = errors.New("a record with this value already exists")
)

// ValidationError 输入校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// DuplicateRepoError 仓库已存在案例，携带已有记录供客户端跳转
type DuplicateRepoError struct {
	RepoURL     string
	CaseStudyID int64
	Slug        string
}

func (e *DuplicateRepoError) Error() string {
	return fmt.Sprintf("a case study already exists for %s", e.RepoURL)
}

// DuplicateEntryError 存储唯一约束冲突，可换值重试
type DuplicateEntryError struct {
	Field string
	Value string
	Err   error
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Field, e.Value)
}

func (e *DuplicateEntryError) Unwrap() error { return e.Err }

func (e *DuplicateEntryError) Is(target error) bool { return target == ErrDuplicateEntry }

// GenerationServiceError 模型服务调用失败（网络/非 2xx）
type GenerationServiceError struct {
	Mode string
	Err  error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service failed (%s): %v", e.Mode, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// GenerationParseError 模型输出不是合法 JSON 或不满足 schema
type GenerationParseError struct {
	Mode   string
	Reason string
	Err    error
}

func (e *GenerationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation output rejected (%s): %s: %v", e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation output rejected (%s): %s", e.Mode, e.Reason)
}

func (e *GenerationParseError) Unwrap() error { return e.Err }

// Retryable 调用方等待或重试后可能成功的错误
func Retryable(err error) bool {
	var svcErr *GenerationServiceError
	var parseErr *GenerationParseError
	switch {
	case errors.Is(err, ErrAnalysisInProgress), errors.Is(err, ErrDuplicateEntry):
		return true
	case errors.As(err, &svcErr), errors.As(err, &parseErr):
		return true
	}
	return false
}
