package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensetracker/database"
	"expensetracker/middleware"
	"expensetracker/models"
	"expensetracker/service"
	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// ExpenseHandler 消费记录处理器
type ExpenseHandler struct {
	store          *workflow.ExpenseStore
	blobs          service.BlobStore
	maxUploadBytes int64
}

// NewExpenseHandler 创建消费记录处理器，maxUploadMB 限制票据大小
func NewExpenseHandler(store *workflow.ExpenseStore, blobs service.BlobStore, maxUploadMB int) *ExpenseHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &ExpenseHandler{
		store:          store,
		blobs:          blobs,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// CreateExpenseRequest 创建消费记录请求，金额均为最小货币单位（如分）
type CreateExpenseRequest struct {
	Title       string `json:"title" binding:"required,max=100" example:"Train to Berlin"`
	Description string `json:"description" binding:"max=255" example:"Customer visit"`
	Supplier    string `json:"supplier" binding:"max=100" example:"Deutsche Bahn"`
	Date        string `json:"date" binding:"required" example:"2024-02-20"`
	Amount      int64  `json:"amount" binding:"required,gt=0" example:"1000"`
	Currency    string `json:"currency" example:"EUR"`
	Category    string `json:"category" binding:"required" example:"Travel"`
	VATApplied  bool   `json:"vat_applied" example:"true"`
	VATAmount   *int64 `json:"vat_amount" example:"150"`
	Book        bool   `json:"book" example:"false"`
	BookAmount  *int64 `json:"book_amount"`
}

// UpdateExpenseRequest 更新消费记录请求，未传的字段保持不变
type UpdateExpenseRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	Supplier    *string `json:"supplier" binding:"omitempty,max=100"`
	Date        *string `json:"date" example:"2024-02-20"`
	Amount      *int64  `json:"amount" binding:"omitempty,gt=0"`
	Currency    *string `json:"currency"`
	Category    *string `json:"category"`
	VATApplied  *bool   `json:"vat_applied"`
	VATAmount   *int64  `json:"vat_amount"`
	Book        *bool   `json:"book"`
	BookAmount  *int64  `json:"book_amount"`
}

// ExpenseListRequest 消费记录列表请求
type ExpenseListRequest struct {
	Page       int    `form:"page" example:"1"`
	PageSize   int    `form:"page_size" example:"10"`
	Status     string `form:"status" example:"DRAFT"`
	Category   string `form:"category" example:"Travel"`
	Unassigned bool   `form:"unassigned" example:"true"`
}

// parseID 解析路径中的 ID
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

func parseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式错误，应为: %s", dateLayout)
	}
	return d, nil
}

// Create 创建消费记录
// @Summary 创建消费记录
// @Description 创建一条草稿状态的消费记录。未指定增值税金额时按当前税率计算
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "消费记录信息"
// @Success 200 {object} Response{data=models.Expense} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	expense, err := h.store.Create(c.Request.Context(), userID, workflow.ExpenseInput{
		Title:       req.Title,
		Description: req.Description,
		Supplier:    req.Supplier,
		Date:        date,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		VATApplied:  req.VATApplied,
		VATAmount:   req.VATAmount,
		Book:        req.Book,
		BookAmount:  req.BookAmount,
	})
	if err != nil {
		RespondError(c, err, "创建消费记录失败")
		return
	}

	SuccessWithMessage(c, "创建成功", expense)
}

// List 获取消费记录列表
// @Summary 获取消费记录列表
// @Description 获取当前用户的消费记录列表，支持分页和筛选；unassigned=true 只返回未加入报销单的记录
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param status query string false "状态筛选 (DRAFT/SUBMITTED/COMPLETED)"
// @Param category query string false "类别筛选"
// @Param unassigned query bool false "只看未加入报销单的记录"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Expense}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req ExpenseListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	filter := workflow.ExpenseFilter{
		Status:     models.ExpenseStatus(strings.ToUpper(req.Status)),
		Category:   req.Category,
		Unassigned: req.Unassigned,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	expenses, total, err := h.store.List(c.Request.Context(), userID, filter)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	// 与 ExpenseStore.List 的分页默认值保持一致
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	Success(c, PageResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		List:     expenses,
	})
}

// Get 获取单条消费记录
// @Summary 获取单条消费记录
// @Description 根据ID获取消费记录详情
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	expense, err := h.store.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "查询失败")
		return
	}

	Success(c, expense)
}

// Update 更新消费记录
// @Summary 更新消费记录
// @Description 更新草稿状态的消费记录，已提交或已完成的记录不可修改
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Param request body UpdateExpenseRequest true "消费记录信息"
// @Success 200 {object} Response{data=models.Expense} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "记录已锁定"
// @Router /api/v1/expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	patch := workflow.ExpensePatch{
		Title:       req.Title,
		Description: req.Description,
		Supplier:    req.Supplier,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		VATApplied:  req.VATApplied,
		VATAmount:   req.VATAmount,
		Book:        req.Book,
		BookAmount:  req.BookAmount,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		patch.Date = &date
	}

	expense, err := h.store.Update(c.Request.Context(), userID, id, patch)
	if err != nil {
		RespondError(c, err, "更新失败")
		return
	}

	SuccessWithMessage(c, "更新成功", expense)
}

// Delete 删除消费记录
// @Summary 删除消费记录
// @Description 删除草稿状态的消费记录，同时删除其票据文件
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "记录已锁定"
// @Router /api/v1/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "删除失败")
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}

// UploadReceipt 上传票据
// @Summary 上传票据
// @Description 为草稿状态的消费记录上传票据文件，已有票据会被替换
// @Tags 消费记录
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Param file formData file true "票据文件"
// @Success 200 {object} Response{data=models.Expense} "上传成功"
// @Failure 400 {object} Response "文件缺失或过大"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "记录已锁定"
// @Router /api/v1/expenses/{id}/receipt [post]
func (h *ExpenseHandler) UploadReceipt(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请选择要上传的票据文件")
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		BadRequest(c, fmt.Sprintf("票据文件不能超过 %d MB", h.maxUploadBytes>>20))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "读取上传文件失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		BadRequest(c, "读取上传文件失败")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		BadRequest(c, fmt.Sprintf("票据文件不能超过 %d MB", h.maxUploadBytes>>20))
		return
	}
	if len(data) == 0 {
		BadRequest(c, "票据文件为空")
		return
	}

	expense, err := h.store.AttachReceipt(c.Request.Context(), userID, id, fileHeader.Filename, data)
	if err != nil {
		RespondError(c, err, "上传票据失败")
		return
	}

	SuccessWithMessage(c, "上传成功", expense)
}

// DownloadReceipt 下载票据
// @Summary 下载票据
// @Description 消费记录所有者或所属报销单的审批人可以下载票据
// @Tags 消费记录
// @Produce octet-stream
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Success 200 {file} binary "票据文件"
// @Failure 404 {object} Response "记录或票据不存在"
// @Router /api/v1/expenses/{id}/receipt [get]
func (h *ExpenseHandler) DownloadReceipt(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	blobID, err := h.store.ReceiptBlobID(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err, "查询票据失败")
		return
	}
	obj, err := h.blobs.Get(c.Request.Context(), blobID)
	if errors.Is(err, service.ErrBlobNotFound) {
		NotFound(c, "票据不存在")
		return
	}
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "读取票据失败"))
		return
	}

	filename := obj.Filename
	if filename == "" {
		filename = obj.ID
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, obj.Mimetype, obj.Data)
}

// CategoryStat 按类别统计的消费金额
type CategoryStat struct {
	Category string `json:"category"`
	Currency string `json:"currency"`
	Total    int64  `json:"total"`
	Count    int64  `json:"count"`
}

// GetStatistics 获取消费统计
// @Summary 获取消费统计
// @Description 按类别和币种汇总当前用户的消费金额（最小货币单位），可按状态和日期范围筛选
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态筛选"
// @Param start_date query string false "开始日期 (2024-01-01)"
// @Param end_date query string false "结束日期 (2024-12-31)"
// @Success 200 {object} Response{data=[]CategoryStat} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses/statistics [get]
func (h *ExpenseHandler) GetStatistics(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	query := database.DB.Model(&models.Expense{}).Where("user_id = ?", userID)
	if status := strings.ToUpper(c.Query("status")); status != "" {
		if !models.ExpenseStatus(status).IsValid() {
			BadRequest(c, "无效的消费记录状态")
			return
		}
		query = query.Where("status = ?", status)
	}
	if s := c.Query("start_date"); s != "" {
		start, err := parseDate(s)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		query = query.Where("date >= ?", start)
	}
	if s := c.Query("end_date"); s != "" {
		end, err := parseDate(s)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		// 包含结束日期当天
		query = query.Where("date < ?", end.AddDate(0, 0, 1))
	}

	stats := []CategoryStat{}
	if err := query.
		Select("category, currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("category, currency").
		Order("total DESC").
		Scan(&stats).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}

	Success(c, stats)
}
