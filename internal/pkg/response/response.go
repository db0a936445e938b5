package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeAuthFailed         = 1001
	CodePermissionDenied   = 1002
	CodeResourceNotFound   = 1003
	CodeAnalysisInProgress = 1004
	CodeDuplicateRepo      = 1005
	CodeRateLimited        = 1006
	CodeInvalidSignature   = 1007
	CodeServerError        = 5000
	CodeGenerationFailed   = 5001
	CodeNotConfigured      = 5002
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeAuthFailed:         "认证失败",
	CodePermissionDenied:   "权限不足",
	CodeResourceNotFound:   "资源不存在",
	CodeAnalysisInProgress: "已有分析正在进行，请稍后再试",
	CodeDuplicateRepo:      "该仓库的案例已存在",
	CodeRateLimited:        "请求过于频繁",
	CodeInvalidSignature:   "签名校验失败",
	CodeServerError:        "服务器内部错误",
	CodeGenerationFailed:   "内容生成失败，请稍后重试",
	CodeNotConfigured:      "服务未配置",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// Error 错误响应，HTTP 状态固定 200
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 携带补充数据的错误响应（如重复仓库的已有 slug）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	ErrorWithStatus(c, http.StatusOK, code, message, data)
}

// ErrorWithStatus 需要真实 HTTP 状态码的场景（webhook 回调方依赖状态码重试）
func ErrorWithStatus(c *gin.Context, status, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// RateLimitError 限流
func RateLimitError(c *gin.Context, message string) {
	ErrorWithStatus(c, http.StatusTooManyRequests, CodeRateLimited, message, nil)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// HandleError 将 apperr 分类映射为响应码，未识别的错误按 5000 处理且不透出细节
func HandleError(c *gin.Context, err error) {
	var (
		validationErr *apperr.ValidationError
		dupRepoErr    *apperr.DuplicateRepoError
		genSvcErr     *apperr.GenerationServiceError
		genParseErr   *apperr.GenerationParseError
	)

	switch {
	case errors.As(err, &validationErr):
		ParamError(c, validationErr.Error())
	case errors.As(err, &dupRepoErr):
		ErrorWithData(c, CodeDuplicateRepo, "", gin.H{
			"case_study_id": dupRepoErr.CaseStudyID,
			"slug":          dupRepoErr.Slug,
		})
	case errors.Is(err, apperr.ErrAuth):
		AuthError(c, "")
	case errors.Is(err, apperr.ErrForbidden):
		PermissionError(c, "")
	case errors.Is(err, apperr.ErrNotFound):
		NotFoundError(c, "")
	case errors.Is(err, apperr.ErrAnalysisInProgress):
		ErrorWithData(c, CodeAnalysisInProgress, "", gin.H{"retryable": true})
	case errors.Is(err, apperr.ErrInvalidSignature):
		Error(c, CodeInvalidSignature, "")
	case errors.Is(err, apperr.ErrConfiguration):
		Error(c, CodeNotConfigured, "")
	case errors.As(err, &genSvcErr), errors.As(err, &genParseErr):
		ErrorWithData(c, CodeGenerationFailed, "", gin.H{"retryable": true})
	case errors.Is(err, apperr.ErrDuplicateEntry):
		ErrorWithData(c, CodeServerError, "", gin.H{"retryable": true})
	default:
		ServerError(c, "")
	}
}
