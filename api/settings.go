package api

import (
	"context"

	"expensetracker/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// testMailer 发送测试邮件，由 service.EmailService 实现
type testMailer interface {
	SendTestEmail(ctx context.Context, toEmail string) error
}

// SettingsHandler 报销业务配置（税率、财务邮箱、默认币种）
type SettingsHandler struct {
	settings *config.Settings
	mailer   testMailer
}

// NewSettingsHandler 创建配置处理器
func NewSettingsHandler(settings *config.Settings, mailer testMailer) *SettingsHandler {
	return &SettingsHandler{settings: settings, mailer: mailer}
}

// UpdateSettingsRequest 修改报销业务配置请求
type UpdateSettingsRequest struct {
	VATRate         *float64 `json:"vat_rate" binding:"required,gte=0,lt=1" example:"0.15"`
	FinanceEmail    string   `json:"finance_email" binding:"omitempty,email" example:"finance@example.com"`
	DefaultCurrency string   `json:"default_currency" binding:"required,len=3,alpha" example:"EUR"`
}

// TestEmailRequest 测试邮件请求
type TestEmailRequest struct {
	To string `json:"to" binding:"required,email" example:"admin@example.com"`
}

// Get 获取当前报销业务配置
// @Summary 获取报销配置
// @Description 获取当前生效的增值税税率、财务邮箱和默认币种
// @Tags 配置
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=config.ExpenseConfig} "获取成功"
// @Router /api/v1/settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	Success(c, h.settings.Snapshot())
}

// Update 修改报销业务配置，立即对之后的请求生效
// @Summary 修改报销配置
// @Description 管理员修改税率、财务邮箱和默认币种，已有消费记录的金额不受影响
// @Tags 后台管理-配置
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateSettingsRequest true "报销配置"
// @Success 200 {object} Response{data=config.ExpenseConfig} "修改成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 403 {object} Response "需要管理员权限"
// @Router /api/v1/admin/settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	h.settings.Update(config.ExpenseConfig{
		VATRate:         *req.VATRate,
		FinanceEmail:    req.FinanceEmail,
		DefaultCurrency: req.DefaultCurrency,
	})
	next := h.settings.Snapshot()
	zap.L().Info("报销配置已更新",
		zap.Float64("vat_rate", next.VATRate),
		zap.String("finance_email", next.FinanceEmail),
		zap.String("default_currency", next.DefaultCurrency))

	SuccessWithMessage(c, "修改成功", next)
}

// SendTestEmail 发送测试邮件
// @Summary 发送测试邮件
// @Description 管理员验证 SMTP 配置是否可用
// @Tags 后台管理-配置
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TestEmailRequest true "收件人"
// @Success 200 {object} Response "发送成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 500 {object} Response "发送失败"
// @Router /api/v1/admin/settings/test-email [post]
func (h *SettingsHandler) SendTestEmail(c *gin.Context) {
	var req TestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请输入有效的邮箱地址")
		return
	}
	if err := h.mailer.SendTestEmail(c.Request.Context(), req.To); err != nil {
		InternalError(c, SafeErrorMessage(err, "发送测试邮件失败"))
		return
	}
	SuccessWithMessage(c, "发送成功", nil)
}
