package workflow

import (
	"context"
	"fmt"

	"expensetracker/config"
	"expensetracker/models"

	"go.uber.org/zap"
)

// Event 报销单状态变更事件
type Event string

const (
	EventSubmitted Event = "submitted"
	EventApproved  Event = "approved"
	EventRejected  Event = "rejected"
)

// Transition 提交给后置动作的状态变更上下文
// 同一事件的后置动作按注册顺序共享该对象，前一个动作可以为后续动作写入 PDF
type Transition struct {
	Event    Event
	Report   *models.ExpenseReport
	Employee *models.User
	// Approver 提交时为被指定的审批人，审批/驳回时为操作人
	Approver *models.User
	Reason   string
	PDF      []byte
}

// Hook 事务提交后执行的动作，失败不会回滚状态变更
type Hook struct {
	Name string
	Run  func(ctx context.Context, t *Transition) error
}

// HookResult 单个后置动作的执行结果
type HookResult struct {
	Name string
	Err  error
}

// HookReport 一次状态变更触发的全部后置动作结果
type HookReport []HookResult

// Failed 返回失败的后置动作
func (r HookReport) Failed() []HookResult {
	var failed []HookResult
	for _, h := range r {
		if h.Err != nil {
			failed = append(failed, h)
		}
	}
	return failed
}

// Err 返回指定名称后置动作的错误，未执行或成功时为 nil
func (r HookReport) Err(name string) error {
	for _, h := range r {
		if h.Name == name {
			return h.Err
		}
	}
	return nil
}

// Notifier 通知发送方
type Notifier interface {
	NotifySubmission(ctx context.Context, report *models.ExpenseReport, employee, manager *models.User) error
	NotifyApproval(ctx context.Context, report *models.ExpenseReport, employee *models.User, financeAddress string, pdf []byte) error
	NotifyRejection(ctx context.Context, report *models.ExpenseReport, employee, approver *models.User) error
}

// Renderer 报销单文档渲染
type Renderer interface {
	RenderReportPDF(ctx context.Context, report *models.ExpenseReport) ([]byte, error)
}

// 默认后置动作名称
const (
	HookNotifySubmission = "notify_submission"
	HookRenderPDF        = "render_pdf"
	HookNotifyApproval   = "notify_approval"
	HookNotifyRejection  = "notify_rejection"
)

// Use 为事件追加后置动作，按追加顺序执行
func (s *Service) Use(event Event, hooks ...Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[event] = append(s.hooks[event], hooks...)
}

// UseDefaultHooks 注册默认后置动作：提交通知审批人；审批通过先生成 PDF 再通知员工和财务；驳回通知员工
func (s *Service) UseDefaultHooks(notifier Notifier, renderer Renderer, settings config.SettingsProvider) {
	s.Use(EventSubmitted, Hook{
		Name: HookNotifySubmission,
		Run: func(ctx context.Context, t *Transition) error {
			return notifier.NotifySubmission(ctx, t.Report, t.Employee, t.Approver)
		},
	})

	s.Use(EventApproved,
		Hook{
			Name: HookRenderPDF,
			Run: func(ctx context.Context, t *Transition) error {
				pdf, err := renderer.RenderReportPDF(ctx, t.Report)
				if err != nil {
					return err
				}
				t.PDF = pdf
				return nil
			},
		},
		Hook{
			Name: HookNotifyApproval,
			Run: func(ctx context.Context, t *Transition) error {
				return notifier.NotifyApproval(ctx, t.Report, t.Employee, settings.FinanceEmail(), t.PDF)
			},
		},
	)

	s.Use(EventRejected, Hook{
		Name: HookNotifyRejection,
		Run: func(ctx context.Context, t *Transition) error {
			return notifier.NotifyRejection(ctx, t.Report, t.Employee, t.Approver)
		},
	})
}

// runHooks 依次执行事件的后置动作，错误与 panic 均被记录而不向上传播
func (s *Service) runHooks(ctx context.Context, t *Transition) HookReport {
	s.mu.RLock()
	hooks := append([]Hook(nil), s.hooks[t.Event]...)
	s.mu.RUnlock()

	report := make(HookReport, 0, len(hooks))
	for _, h := range hooks {
		err := safeRun(ctx, h, t)
		report = append(report, HookResult{Name: h.Name, Err: err})
		if err != nil {
			s.logger.Error("报销单后置动作执行失败",
				zap.String("event", string(t.Event)),
				zap.String("hook", h.Name),
				zap.Uint("report_id", t.Report.ID),
				zap.Error(err),
			)
		}
	}
	return report
}

func safeRun(ctx context.Context, h Hook, t *Transition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("后置动作 panic: %v", r)
		}
	}()
	return h.Run(ctx, t)
}
