package api

import (
	"expensetracker/middleware"
	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
)

// ManagerHandler 管理关系处理器：员工维护自己的上级，上级查看下属
type ManagerHandler struct {
	wf *workflow.Service
}

// NewManagerHandler 创建管理关系处理器
func NewManagerHandler(wf *workflow.Service) *ManagerHandler {
	return &ManagerHandler{wf: wf}
}

// AddManagerRequest 添加上级请求
type AddManagerRequest struct {
	Login string `json:"login" binding:"required" example:"bob@example.com"` // 用户名或邮箱
}

// ListManagers 我的上级
// @Summary 获取我的上级
// @Description 获取当前用户可以提交报销单的上级列表
// @Tags 管理关系
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.ManagementRelationship} "获取成功"
// @Router /api/v1/managers [get]
func (h *ManagerHandler) ListManagers(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	rels, err := h.wf.Managers(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}
	Success(c, rels)
}

// AddManager 添加上级
// @Summary 添加上级
// @Description 按用户名或邮箱添加上级，之后可向其提交报销单
// @Tags 管理关系
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AddManagerRequest true "上级的用户名或邮箱"
// @Success 200 {object} Response{data=models.ManagementRelationship} "添加成功"
// @Failure 400 {object} Response "不能添加自己"
// @Failure 404 {object} Response "用户不存在"
// @Failure 409 {object} Response "已是上级"
// @Router /api/v1/managers [post]
func (h *ManagerHandler) AddManager(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req AddManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请输入上级的用户名或邮箱")
		return
	}

	rel, err := h.wf.AddManager(c.Request.Context(), userID, req.Login)
	if err != nil {
		RespondError(c, err, "添加上级失败")
		return
	}
	SuccessWithMessage(c, "添加成功", rel)
}

// RemoveManager 移除上级
// @Summary 移除上级
// @Description 移除管理关系，已提交给该上级的报销单不受影响
// @Tags 管理关系
// @Produce json
// @Security BearerAuth
// @Param id path int true "上级的用户ID"
// @Success 200 {object} Response "移除成功"
// @Failure 404 {object} Response "管理关系不存在"
// @Router /api/v1/managers/{id} [delete]
func (h *ManagerHandler) RemoveManager(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	managerID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.wf.RemoveManager(c.Request.Context(), userID, managerID); err != nil {
		RespondError(c, err, "移除上级失败")
		return
	}
	SuccessWithMessage(c, "移除成功", nil)
}

// ListEmployees 我的下属
// @Summary 获取我的下属
// @Description 获取把当前用户设为上级的员工
// @Tags 管理关系
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.ManagementRelationship} "获取成功"
// @Router /api/v1/employees [get]
func (h *ManagerHandler) ListEmployees(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	rels, err := h.wf.Employees(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}
	Success(c, rels)
}
