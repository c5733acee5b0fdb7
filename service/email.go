package service

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"expensetracker/config"
	"expensetracker/models"

	"gopkg.in/gomail.v2"
)

// mailSender 发送已组装好的邮件，由 gomail.Dialer 实现
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService 报销单通知邮件
type EmailService struct {
	cfg     *config.EmailConfig
	baseURL string
	sender  mailSender
}

// NewEmailService 创建邮件服务，baseURL 用于生成报销单链接
func NewEmailService(cfg *config.EmailConfig, baseURL string) *EmailService {
	return &EmailService{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// NotifySubmission 通知审批人有新的报销单待审批
func (s *EmailService) NotifySubmission(ctx context.Context, report *models.ExpenseReport, employee, manager *models.User) error {
	subject := fmt.Sprintf("【报销系统】%s 提交了报销单《%s》", employee.DisplayName(), report.Title)
	body := s.generateSubmissionEmailBody(report, employee, manager)
	return s.sendEmail(ctx, []string{manager.Email}, subject, body, nil)
}

// NotifyApproval 通知员工报销单已通过，并抄送财务；pdf 非空时作为附件
func (s *EmailService) NotifyApproval(ctx context.Context, report *models.ExpenseReport, employee *models.User, financeAddress string, pdf []byte) error {
	to := []string{employee.Email}
	if financeAddress != "" {
		to = append(to, financeAddress)
	}
	subject := fmt.Sprintf("【报销系统】报销单《%s》已审批通过", report.Title)
	body := s.generateApprovalEmailBody(report, employee)

	var attachment *emailAttachment
	if len(pdf) > 0 {
		attachment = &emailAttachment{name: ReportPDFFilename(report), data: pdf}
	}
	return s.sendEmail(ctx, to, subject, body, attachment)
}

// NotifyRejection 通知员工报销单被驳回及原因
func (s *EmailService) NotifyRejection(ctx context.Context, report *models.ExpenseReport, employee, approver *models.User) error {
	subject := fmt.Sprintf("【报销系统】报销单《%s》被驳回", report.Title)
	body := s.generateRejectionEmailBody(report, employee, approver)
	return s.sendEmail(ctx, []string{employee.Email}, subject, body, nil)
}

func (s *EmailService) reportLink(report *models.ExpenseReport) string {
	return fmt.Sprintf("%s/reports/%d", s.baseURL, report.ID)
}

func (s *EmailService) generateSubmissionEmailBody(report *models.ExpenseReport, employee, manager *models.User) string {
	content := fmt.Sprintf(`
            <p>%s，您好！</p>
            <p><strong>%s</strong> 提交了报销单 <strong>《%s》</strong>，等待您审批。</p>
            %s
            <p style="text-align: center;">
                <a href="%s" class="btn">查看报销单</a>
            </p>`,
		html.EscapeString(manager.DisplayName()),
		html.EscapeString(employee.DisplayName()),
		html.EscapeString(report.Title),
		summaryTable(report),
		s.reportLink(report),
	)
	return wrapEmailBody(content)
}

func (s *EmailService) generateApprovalEmailBody(report *models.ExpenseReport, employee *models.User) string {
	content := fmt.Sprintf(`
            <p>%s，您好！</p>
            <p>您的报销单 <strong>《%s》</strong> 已审批通过，报销单 PDF 见附件。</p>
            %s
            <p style="text-align: center;">
                <a href="%s" class="btn">查看报销单</a>
            </p>`,
		html.EscapeString(employee.DisplayName()),
		html.EscapeString(report.Title),
		summaryTable(report),
		s.reportLink(report),
	)
	return wrapEmailBody(content)
}

func (s *EmailService) generateRejectionEmailBody(report *models.ExpenseReport, employee, approver *models.User) string {
	content := fmt.Sprintf(`
            <p>%s，您好！</p>
            <p>您的报销单 <strong>《%s》</strong> 被 <strong>%s</strong> 驳回，已退回草稿，修改后可以重新提交。</p>
            <div class="warning">
                <p>驳回原因：%s</p>
            </div>
            <p style="text-align: center;">
                <a href="%s" class="btn">修改报销单</a>
            </p>`,
		html.EscapeString(employee.DisplayName()),
		html.EscapeString(report.Title),
		html.EscapeString(approver.DisplayName()),
		html.EscapeString(report.RejectionReason),
		s.reportLink(report),
	)
	return wrapEmailBody(content)
}

func summaryTable(report *models.ExpenseReport) string {
	currency := reportCurrency(report)
	return fmt.Sprintf(`
            <table class="summary">
                <tr><td>消费笔数</td><td>%d</td></tr>
                <tr><td>合计金额</td><td>%s</td></tr>
                <tr><td>其中增值税</td><td>%s</td></tr>
            </table>`,
		len(report.Expenses),
		FormatAmount(report.TotalAmount, currency),
		FormatAmount(report.TotalVATAmount, currency),
	)
}

// wrapEmailBody 套用统一的邮件样式
func wrapEmailBody(content string) string {
	return `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Microsoft YaHei', Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 20px rgba(0,0,0,0.1); }
        .header { background: linear-gradient(135deg, #2563eb, #1d4ed8); color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 40px 30px; }
        .content p { color: #333; line-height: 1.8; margin: 0 0 20px; }
        .btn { display: inline-block; background: linear-gradient(135deg, #2563eb, #1d4ed8); color: white !important; text-decoration: none; padding: 14px 40px; border-radius: 8px; font-weight: 600; margin: 20px 0; }
        .summary { width: 100%; border-collapse: collapse; margin: 0 0 20px; }
        .summary td { border-bottom: 1px solid #eee; padding: 8px 0; color: #333; }
        .warning { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; border-radius: 4px; }
        .warning p { margin: 0; color: #856404; font-size: 14px; }
        .footer { background: #f8f9fa; padding: 20px 30px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>报销系统</h1>
        </div>
        <div class="content">` + content + `
        </div>
        <div class="footer">
            <p>此邮件由系统自动发送，请勿回复</p>
        </div>
    </div>
</body>
</html>
`
}

type emailAttachment struct {
	name string
	data []byte
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(ctx context.Context, to []string, subject, body string, attachment *emailAttachment) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 email.enabled=true")
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("收件人邮箱为空")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	if attachment != nil {
		data := attachment.data
		m.Attach(attachment.name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
		)
	}

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// SendTestEmail 发送测试邮件
func (s *EmailService) SendTestEmail(ctx context.Context, toEmail string) error {
	subject := "【报销系统】邮件配置测试"
	body := wrapEmailBody(`
            <p>如果您收到这封邮件，说明邮件服务配置正确。</p>`)
	return s.sendEmail(ctx, []string{toEmail}, subject, body, nil)
}
