package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"expensetracker/database"
	"expensetracker/middleware"
	"expensetracker/models"
	"expensetracker/service"

	"github.com/gin-gonic/gin"
)

// ExportHandler 消费记录导出处理器
type ExportHandler struct{}

// NewExportHandler 创建导出处理器
func NewExportHandler() *ExportHandler {
	return &ExportHandler{}
}

// queryRange 查询当前用户在日期范围内的消费记录，参数错误时已写入响应
func (h *ExportHandler) queryRange(c *gin.Context) ([]models.Expense, string, string, bool) {
	userID := middleware.GetCurrentUserID(c)

	startStr := c.Query("start_date")
	endStr := c.Query("end_date")
	if startStr == "" || endStr == "" {
		BadRequest(c, "请提供开始日期和结束日期")
		return nil, "", "", false
	}
	start, err := parseDate(startStr)
	if err != nil {
		BadRequest(c, "开始"+err.Error())
		return nil, "", "", false
	}
	end, err := parseDate(endStr)
	if err != nil {
		BadRequest(c, "结束"+err.Error())
		return nil, "", "", false
	}
	end = end.Add(24 * time.Hour)

	var expenses []models.Expense
	if err := database.DB.Where("user_id = ? AND date >= ? AND date < ?", userID, start, end).
		Order("date DESC, id DESC").
		Find(&expenses).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询数据失败"))
		return nil, "", "", false
	}
	return expenses, startStr, endStr, true
}

// ExportCSV 导出消费记录为 CSV
// @Summary 导出消费记录
// @Description 根据日期范围导出消费记录为 CSV 文件，金额为两位小数
// @Tags 导出
// @Produce text/csv
// @Security BearerAuth
// @Param start_date query string true "开始日期 (2024-01-01)"
// @Param end_date query string true "结束日期 (2024-12-31)"
// @Success 200 {file} file "CSV 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/csv [get]
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	expenses, startStr, endStr, ok := h.queryRange(c)
	if !ok {
		return
	}

	buf := new(bytes.Buffer)
	// 添加 BOM 以支持 Excel 中文显示
	buf.WriteString("\xEF\xBB\xBF")
	writer := csv.NewWriter(buf)

	headers := []string{"ID", "日期", "标题", "供应商", "类别", "币种", "金额", "增值税", "记账金额", "状态", "报销单ID"}
	if err := writer.Write(headers); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	for _, e := range expenses {
		reportID := ""
		if e.ReportID != nil {
			reportID = fmt.Sprintf("%d", *e.ReportID)
		}
		row := []string{
			fmt.Sprintf("%d", e.ID),
			e.Date.Format(dateLayout),
			e.Title,
			e.Supplier,
			e.Category,
			e.Currency,
			service.FormatAmount(e.Amount, ""),
			service.FormatAmount(e.VATAmount, ""),
			service.FormatAmount(e.BookAmount, ""),
			string(e.Status),
			reportID,
		}
		if err := writer.Write(row); err != nil {
			InternalError(c, "生成 CSV 失败")
			return
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	filename := fmt.Sprintf("expenses_%s_%s.csv", startStr, endStr)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportJSON 导出消费记录为 JSON
// @Summary 导出消费记录为 JSON
// @Description 根据日期范围导出消费记录，并按币种汇总金额（最小货币单位）
// @Tags 导出
// @Produce json
// @Security BearerAuth
// @Param start_date query string true "开始日期 (2024-01-01)"
// @Param end_date query string true "结束日期 (2024-12-31)"
// @Success 200 {object} Response "导出成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/json [get]
func (h *ExportHandler) ExportJSON(c *gin.Context) {
	expenses, startStr, endStr, ok := h.queryRange(c)
	if !ok {
		return
	}

	// 不同币种不能直接相加
	totals := make(map[string]int64)
	for _, e := range expenses {
		totals[e.Currency] += e.Amount
	}

	Success(c, gin.H{
		"start_date":  startStr,
		"end_date":    endStr,
		"total_count": len(expenses),
		"totals":      totals,
		"expenses":    expenses,
	})
}
