package api

import (
	"fmt"
	"net/http"
	"strings"

	"expensetracker/middleware"
	"expensetracker/models"
	"expensetracker/service"
	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
)

// ReportHandler 报销单及审批处理器
type ReportHandler struct {
	wf       *workflow.Service
	renderer workflow.Renderer
}

// NewReportHandler 创建报销单处理器
func NewReportHandler(wf *workflow.Service, renderer workflow.Renderer) *ReportHandler {
	return &ReportHandler{wf: wf, renderer: renderer}
}

// CreateReportRequest 创建报销单请求
type CreateReportRequest struct {
	Title      string `json:"title" binding:"required,max=100" example:"Berlin trip"`
	ExpenseIDs []uint `json:"expense_ids" binding:"required,min=1" example:"1,2"`
}

// UpdateReportRequest 修改报销单请求；expense_ids 传入时整体替换报销单中的消费记录
type UpdateReportRequest struct {
	Title      *string `json:"title" binding:"omitempty,max=100"`
	ExpenseIDs []uint  `json:"expense_ids"`
}

// SubmitReportRequest 提交报销单请求
type SubmitReportRequest struct {
	ManagerID uint `json:"manager_id" binding:"required" example:"2"`
}

// RejectReportRequest 驳回报销单请求
type RejectReportRequest struct {
	Reason string `json:"reason" binding:"required,max=500" example:"Missing receipt"`
}

// ReportView 报销单详情，附带员工信息
type ReportView struct {
	*models.ExpenseReport
	Employee *models.User `json:"employee,omitempty"`
}

// TransitionResponse 状态变更结果；warnings 列出失败的后置动作，状态变更本身已生效
type TransitionResponse struct {
	Report   ReportView `json:"report"`
	Warnings []string   `json:"warnings,omitempty"`
}

func newReportView(report *models.ExpenseReport) ReportView {
	view := ReportView{ExpenseReport: report}
	if report.User.ID != 0 {
		employee := report.User
		view.Employee = &employee
	}
	return view
}

func newTransitionResponse(outcome *workflow.Outcome) TransitionResponse {
	resp := TransitionResponse{Report: newReportView(outcome.Report)}
	for _, r := range outcome.Hooks.Failed() {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %s", r.Name, SafeErrorMessage(r.Err, "执行失败")))
	}
	return resp
}

// Create 创建报销单
// @Summary 创建报销单
// @Description 用本人草稿状态且未加入其他报销单的消费记录创建报销单
// @Tags 报销单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateReportRequest true "报销单信息"
// @Success 200 {object} Response{data=models.ExpenseReport} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	report, err := h.wf.Create(c.Request.Context(), userID, req.Title, req.ExpenseIDs)
	if err != nil {
		RespondError(c, err, "创建报销单失败")
		return
	}

	SuccessWithMessage(c, "创建成功", report)
}

// List 获取本人的报销单
// @Summary 获取报销单列表
// @Description 获取当前用户的报销单，可按状态筛选
// @Tags 报销单
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态筛选 (DRAFT/SUBMITTED/APPROVED)"
// @Success 200 {object} Response{data=[]models.ExpenseReport} "获取成功"
// @Failure 400 {object} Response "无效的状态"
// @Router /api/v1/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	status := models.ReportStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))

	reports, err := h.wf.ListOwned(c.Request.Context(), userID, status)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	Success(c, reports)
}

// Get 获取报销单详情
// @Summary 获取报销单详情
// @Description 报销单所有人和审批人可以查看，包含消费记录明细
// @Tags 报销单
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Success 200 {object} Response{data=ReportView} "获取成功"
// @Failure 404 {object} Response "报销单不存在"
// @Router /api/v1/reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.wf.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	Success(c, newReportView(report))
}

// Update 修改报销单
// @Summary 修改报销单
// @Description 修改草稿状态报销单的标题或消费记录，合计金额随之重新计算
// @Tags 报销单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Param request body UpdateReportRequest true "修改内容"
// @Success 200 {object} Response{data=models.ExpenseReport} "修改成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "报销单不存在"
// @Failure 409 {object} Response "报销单已提交或已被修改"
// @Router /api/v1/reports/{id} [put]
func (h *ReportHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	report, err := h.wf.Update(c.Request.Context(), userID, id, workflow.ReportPatch{
		Title:      req.Title,
		ExpenseIDs: req.ExpenseIDs,
	})
	if err != nil {
		RespondError(c, err, "修改报销单失败")
		return
	}

	SuccessWithMessage(c, "修改成功", report)
}

// Delete 删除报销单
// @Summary 删除报销单
// @Description 删除草稿状态的报销单，其中的消费记录回到未分配状态
// @Tags 报销单
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "报销单不存在"
// @Failure 409 {object} Response "报销单已提交"
// @Router /api/v1/reports/{id} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.wf.Remove(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "删除报销单失败")
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}

// Submit 提交报销单
// @Summary 提交报销单
// @Description 把草稿报销单提交给指定的上级审批，报销单中的消费记录随之锁定
// @Tags 报销单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Param request body SubmitReportRequest true "审批人"
// @Success 200 {object} Response{data=TransitionResponse} "提交成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 403 {object} Response "审批人不是当前用户的上级"
// @Failure 409 {object} Response "报销单状态不允许提交"
// @Router /api/v1/reports/{id}/submit [post]
func (h *ReportHandler) Submit(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	outcome, err := h.wf.Submit(c.Request.Context(), userID, id, req.ManagerID)
	if err != nil {
		RespondError(c, err, "提交报销单失败")
		return
	}

	SuccessWithMessage(c, "提交成功", newTransitionResponse(outcome))
}

// Approve 审批通过
// @Summary 审批通过报销单
// @Description 指定的审批人通过报销单，消费记录变为已完成
// @Tags 审批
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Success 200 {object} Response{data=TransitionResponse} "审批成功"
// @Failure 403 {object} Response "不是该报销单的审批人"
// @Failure 409 {object} Response "报销单不在待审批状态"
// @Router /api/v1/reports/{id}/approve [post]
func (h *ReportHandler) Approve(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	outcome, err := h.wf.Approve(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "审批失败")
		return
	}

	SuccessWithMessage(c, "审批成功", newTransitionResponse(outcome))
}

// Reject 驳回
// @Summary 驳回报销单
// @Description 指定的审批人驳回报销单，报销单和消费记录回到草稿状态
// @Tags 审批
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Param request body RejectReportRequest true "驳回原因"
// @Success 200 {object} Response{data=TransitionResponse} "驳回成功"
// @Failure 400 {object} Response "驳回原因不能为空"
// @Failure 403 {object} Response "不是该报销单的审批人"
// @Failure 409 {object} Response "报销单不在待审批状态"
// @Router /api/v1/reports/{id}/reject [post]
func (h *ReportHandler) Reject(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req RejectReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请填写驳回原因")
		return
	}

	outcome, err := h.wf.Reject(c.Request.Context(), userID, id, req.Reason)
	if err != nil {
		RespondError(c, err, "驳回失败")
		return
	}

	SuccessWithMessage(c, "驳回成功", newTransitionResponse(outcome))
}

// PendingApprovals 待我审批的报销单
// @Summary 待审批报销单
// @Description 获取等待当前用户审批的报销单
// @Tags 审批
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]ReportView} "获取成功"
// @Router /api/v1/approvals [get]
func (h *ReportHandler) PendingApprovals(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	reports, err := h.wf.ListPendingApprovals(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	views := make([]ReportView, 0, len(reports))
	for i := range reports {
		views = append(views, newReportView(&reports[i]))
	}
	Success(c, views)
}

// DownloadPDF 下载报销单 PDF
// @Summary 下载报销单 PDF
// @Description 已审批通过的报销单可由所有人或审批人下载 PDF
// @Tags 报销单
// @Produce application/pdf
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Success 200 {file} binary "PDF 文件"
// @Failure 404 {object} Response "报销单不存在"
// @Failure 409 {object} Response "报销单尚未审批通过"
// @Router /api/v1/reports/{id}/pdf [get]
func (h *ReportHandler) DownloadPDF(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.wf.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}
	if report.Status != models.ReportStatusApproved {
		Conflict(c, "报销单尚未审批通过")
		return
	}

	data, err := h.renderer.RenderReportPDF(c.Request.Context(), report)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 PDF 失败"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", service.ReportPDFFilename(report)))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Export 导出报销单 Excel
// @Summary 导出报销单 Excel
// @Description 导出报销单明细和汇总为 Excel 文件
// @Tags 报销单
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "报销单ID"
// @Success 200 {file} binary "Excel 文件"
// @Failure 404 {object} Response "报销单不存在"
// @Router /api/v1/reports/{id}/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	report, err := h.wf.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	data, err := service.ExportReportXLSX(report)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "导出失败"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", service.ReportXLSXFilename(report)))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
