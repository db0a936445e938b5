package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/devhance_server/internal/api/middleware"
	"github.com/qs3c/devhance_server/internal/model/dto"
	"github.com/qs3c/devhance_server/internal/pkg/response"
)

// CaseStudyService 由 service.CaseStudyService 实现
type CaseStudyService interface {
	Create(ctx context.Context, userID int64, rawURL string) (*dto.CreateCaseStudyResponse, error)
	GetBySlug(ctx context.Context, slug string) (*dto.CaseStudyDetail, error)
	ListMine(ctx context.Context, userID int64, page, pageSize int) ([]*dto.CaseStudyListItem, int64, error)
}

type CaseStudyHandler struct {
	caseStudyService CaseStudyService
}

func NewCaseStudyHandler(caseStudyService CaseStudyService) *CaseStudyHandler {
	return &CaseStudyHandler{
		caseStudyService: caseStudyService,
	}
}

// Create 提交仓库生成案例
// POST /api/v1/case-studies
func (h *CaseStudyHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateCaseStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.caseStudyService.Create(c.Request.Context(), userID, req.RepoURL)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, resp)
}

// Get 案例详情，公开访问
// GET /api/v1/case-studies/:slug
func (h *CaseStudyHandler) Get(c *gin.Context) {
	detail, err := h.caseStudyService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, detail)
}

// List 当前用户的案例
// GET /api/v1/case-studies
func (h *CaseStudyHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}

	items, total, err := h.caseStudyService.ListMine(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.SuccessPage(c, total, q.Page, q.PageSize, items)
}
