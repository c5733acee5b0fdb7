// Package workflow 报销单审批工作流：报销单的创建、修改、提交、审批、驳回，
// 以及状态在报销单与其消费记录之间的级联。
package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"expensetracker/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 报销工作流服务
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	hooks map[Event][]Hook
}

// NewService 创建工作流服务，logger 为 nil 时使用 zap.NewNop
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		logger: logger.Named("workflow"),
		now:    time.Now,
		hooks:  make(map[Event][]Hook),
	}
}

// SetClock 替换时间来源
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// applyCascade 在事务内完成报销单状态迁移，并把对应状态写入全部成员消费记录
// 报销单写入带版本号条件，版本不一致说明已被并发修改
func applyCascade(tx *gorm.DB, report *models.ExpenseReport, to models.ReportStatus, expenseStatus models.ExpenseStatus) error {
	if err := validateTransition(report.Status, to); err != nil {
		return err
	}
	if expenseStatus != to.ExpenseStatusFor() {
		return fmt.Errorf("消费记录状态 %s 与报销单状态 %s 不匹配", expenseStatus, to)
	}

	res := tx.Model(&models.ExpenseReport{}).
		Where("id = ? AND version = ?", report.ID, report.Version).
		Updates(map[string]interface{}{
			"status":           to,
			"approver_id":      report.ApproverID,
			"submitted_at":     report.SubmittedAt,
			"decision_at":      report.DecisionAt,
			"rejection_reason": report.RejectionReason,
			"version":          report.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("更新报销单状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindConflict, "报销单 %d 已被其他操作修改，请刷新后重试", report.ID)
	}

	if err := tx.Model(&models.Expense{}).
		Where("report_id = ?", report.ID).
		Update("status", expenseStatus).Error; err != nil {
		return fmt.Errorf("更新消费记录状态失败: %w", err)
	}

	report.Status = to
	report.Version++
	for i := range report.Expenses {
		report.Expenses[i].Status = expenseStatus
	}
	return nil
}

// loadReport 加载报销单及其消费记录
func loadReport(tx *gorm.DB, id uint) (*models.ExpenseReport, error) {
	var report models.ExpenseReport
	err := tx.Preload("Expenses", func(db *gorm.DB) *gorm.DB {
		return db.Order("date ASC, id ASC")
	}).First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "报销单 %d 不存在", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询报销单失败: %w", err)
	}
	return &report, nil
}

// loadOwnedReport 加载属于 ownerID 的报销单，他人的报销单视为不存在
func loadOwnedReport(tx *gorm.DB, ownerID, id uint) (*models.ExpenseReport, error) {
	report, err := loadReport(tx, id)
	if err != nil {
		return nil, err
	}
	if report.UserID != ownerID {
		return nil, newError(KindNotFound, "报销单 %d 不存在", id)
	}
	return report, nil
}

func loadUser(tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	err := tx.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "用户 %d 不存在", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}
