package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"expensetracker/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome 状态变更的结果：提交后的报销单与后置动作执行情况
type Outcome struct {
	Report *models.ExpenseReport
	Hooks  HookReport
}

// ReportPatch 报销单修改内容，nil 字段保持不变
type ReportPatch struct {
	Title      *string
	ExpenseIDs []uint
}

// Create 用 ownerID 的草稿消费记录创建报销单
func (s *Service) Create(ctx context.Context, ownerID uint, title string, expenseIDs []uint) (*models.ExpenseReport, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, newError(KindValidation, "报销单标题不能为空")
	}
	ids, err := normalizeIDs(expenseIDs)
	if err != nil {
		return nil, err
	}

	var report *models.ExpenseReport
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expenses, err := loadAssignableExpenses(tx, ownerID, ids, 0)
		if err != nil {
			return err
		}

		report = &models.ExpenseReport{
			UserID:  ownerID,
			Title:   title,
			Status:  models.ReportStatusDraft,
			Version: 1,
		}
		report.TotalAmount, report.TotalVATAmount = sumTotals(expenses)
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("创建报销单失败: %w", err)
		}
		if err := linkExpenses(tx, report.ID, ids); err != nil {
			return err
		}
		for i := range expenses {
			expenses[i].ReportID = &report.ID
		}
		report.Expenses = expenses
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("报销单已创建",
		zap.Uint("report_id", report.ID),
		zap.Uint("user_id", ownerID),
		zap.Int("expenses", len(ids)))
	return report, nil
}

// Update 修改草稿报销单的标题或成员消费记录，成员变化时重新计算合计
func (s *Service) Update(ctx context.Context, ownerID, reportID uint, patch ReportPatch) (*models.ExpenseReport, error) {
	updates := make(map[string]interface{})
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, newError(KindValidation, "报销单标题不能为空")
		}
		updates["title"] = title
	}

	var ids []uint
	if patch.ExpenseIDs != nil {
		var err error
		if ids, err = normalizeIDs(patch.ExpenseIDs); err != nil {
			return nil, err
		}
	}

	var report *models.ExpenseReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = loadOwnedReport(tx, ownerID, reportID)
		if err != nil {
			return err
		}
		if !report.IsDraft() {
			return newError(KindInvalidState, "报销单当前状态为 %s，只有草稿可以修改", report.Status)
		}

		if ids != nil {
			expenses, err := loadAssignableExpenses(tx, ownerID, ids, report.ID)
			if err != nil {
				return err
			}
			if err := unlinkExpenses(tx, report.ID); err != nil {
				return err
			}
			if err := linkExpenses(tx, report.ID, ids); err != nil {
				return err
			}
			updates["total_amount"], updates["total_vat_amount"] = sumTotals(expenses)
		}
		if len(updates) == 0 {
			return nil
		}

		updates["version"] = report.Version + 1
		res := tx.Model(&models.ExpenseReport{}).
			Where("id = ? AND version = ?", report.ID, report.Version).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("更新报销单失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(KindConflict, "报销单 %d 已被其他操作修改，请刷新后重试", report.ID)
		}

		report, err = loadReport(tx, report.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Remove 删除草稿报销单，成员消费记录解除关联后保持草稿
func (s *Service) Remove(ctx context.Context, ownerID, reportID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := loadOwnedReport(tx, ownerID, reportID)
		if err != nil {
			return err
		}
		if !report.IsDraft() {
			return newError(KindInvalidState, "报销单当前状态为 %s，只有草稿可以删除", report.Status)
		}
		if err := unlinkExpenses(tx, report.ID); err != nil {
			return err
		}
		res := tx.Where("version = ?", report.Version).Delete(&models.ExpenseReport{}, report.ID)
		if res.Error != nil {
			return fmt.Errorf("删除报销单失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(KindConflict, "报销单 %d 已被其他操作修改，请刷新后重试", report.ID)
		}
		return nil
	})
}

// Submit 提交草稿报销单给存在管理关系的上级审批
func (s *Service) Submit(ctx context.Context, ownerID, reportID, managerID uint) (*Outcome, error) {
	if managerID == 0 {
		return nil, newError(KindValidation, "请选择审批人")
	}
	if managerID == ownerID {
		return nil, newError(KindValidation, "不能提交给自己审批")
	}

	t := &Transition{Event: EventSubmitted}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := loadOwnedReport(tx, ownerID, reportID)
		if err != nil {
			return err
		}
		if !report.IsDraft() {
			return newError(KindInvalidState, "报销单当前状态为 %s，只有草稿可以提交", report.Status)
		}
		if len(report.Expenses) == 0 {
			return newError(KindValidation, "报销单没有任何消费记录")
		}

		var count int64
		if err := tx.Model(&models.ManagementRelationship{}).
			Where("employee_id = ? AND manager_id = ?", ownerID, managerID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("查询管理关系失败: %w", err)
		}
		if count == 0 {
			return newError(KindUnauthorized, "用户 %d 不是你的上级，不能审批该报销单", managerID)
		}

		if t.Employee, err = loadUser(tx, ownerID); err != nil {
			return err
		}
		if t.Approver, err = loadUser(tx, managerID); err != nil {
			return err
		}

		now := s.now()
		report.ApproverID = &managerID
		report.SubmittedAt = &now
		report.DecisionAt = nil
		report.RejectionReason = ""
		if err := applyCascade(tx, report, models.ReportStatusSubmitted, models.ExpenseStatusSubmitted); err != nil {
			return err
		}
		t.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("报销单已提交",
		zap.Uint("report_id", reportID),
		zap.Uint("user_id", ownerID),
		zap.Uint("approver_id", managerID))
	return s.finish(ctx, t), nil
}

// Approve 审批通过，报销单进入终态，消费记录变为已完成
func (s *Service) Approve(ctx context.Context, approverID, reportID uint) (*Outcome, error) {
	t := &Transition{Event: EventApproved}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := s.loadForDecision(tx, approverID, reportID)
		if err != nil {
			return err
		}
		if t.Employee, err = loadUser(tx, report.UserID); err != nil {
			return err
		}
		if t.Approver, err = loadUser(tx, approverID); err != nil {
			return err
		}

		now := s.now()
		report.DecisionAt = &now
		if err := applyCascade(tx, report, models.ReportStatusApproved, models.ExpenseStatusCompleted); err != nil {
			return err
		}
		report.User = *t.Employee
		report.Approver = t.Approver
		t.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("报销单已审批通过",
		zap.Uint("report_id", reportID),
		zap.Uint("approver_id", approverID))
	return s.finish(ctx, t), nil
}

// Reject 驳回报销单，退回草稿并记录原因，审批人清空
func (s *Service) Reject(ctx context.Context, approverID, reportID uint, reason string) (*Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(KindValidation, "驳回原因不能为空")
	}

	t := &Transition{Event: EventRejected, Reason: reason}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := s.loadForDecision(tx, approverID, reportID)
		if err != nil {
			return err
		}
		if t.Employee, err = loadUser(tx, report.UserID); err != nil {
			return err
		}
		if t.Approver, err = loadUser(tx, approverID); err != nil {
			return err
		}

		now := s.now()
		report.ApproverID = nil
		report.DecisionAt = &now
		report.RejectionReason = reason
		if err := applyCascade(tx, report, models.ReportStatusDraft, models.ExpenseStatusDraft); err != nil {
			return err
		}
		t.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("报销单已驳回",
		zap.Uint("report_id", reportID),
		zap.Uint("approver_id", approverID),
		zap.String("reason", reason))
	return s.finish(ctx, t), nil
}

// loadForDecision 审批/驳回的公共前置校验：必须是指定审批人且报销单处于已提交状态
func (s *Service) loadForDecision(tx *gorm.DB, approverID, reportID uint) (*models.ExpenseReport, error) {
	report, err := loadReport(tx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.IsApprover(approverID) {
		return nil, newError(KindUnauthorized, "你不是报销单 %d 的审批人", reportID)
	}
	if report.Status != models.ReportStatusSubmitted {
		return nil, newError(KindInvalidState, "报销单当前状态为 %s，只有已提交的报销单可以审批", report.Status)
	}
	return report, nil
}

// finish 在事务提交后执行后置动作，不继承 ctx 的取消
func (s *Service) finish(ctx context.Context, t *Transition) *Outcome {
	return &Outcome{
		Report: t.Report,
		Hooks:  s.runHooks(context.WithoutCancel(ctx), t),
	}
}

// Get 查询报销单，仅所有人和当前审批人可见
func (s *Service) Get(ctx context.Context, userID, reportID uint) (*models.ExpenseReport, error) {
	db := s.db.WithContext(ctx)
	report, err := loadReport(db, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID && !report.IsApprover(userID) {
		return nil, newError(KindNotFound, "报销单 %d 不存在", reportID)
	}
	if err := db.First(&report.User, report.UserID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询报销单所有人失败: %w", err)
	}
	if report.ApproverID != nil {
		approver, err := loadUser(db, *report.ApproverID)
		if err == nil {
			report.Approver = approver
		} else if KindOf(err) != KindNotFound {
			return nil, err
		}
	}
	return report, nil
}

// ListOwned 查询本人的报销单，status 为空时返回全部
func (s *Service) ListOwned(ctx context.Context, ownerID uint, status models.ReportStatus) ([]models.ExpenseReport, error) {
	if status != "" && !status.IsValid() {
		return nil, newError(KindValidation, "无效的报销单状态: %s", status)
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var reports []models.ExpenseReport
	if err := query.Order("updated_at DESC, id DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("查询报销单失败: %w", err)
	}
	return reports, nil
}

// ListPendingApprovals 查询等待 managerID 审批的报销单
func (s *Service) ListPendingApprovals(ctx context.Context, managerID uint) ([]models.ExpenseReport, error) {
	var reports []models.ExpenseReport
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("approver_id = ? AND status = ?", managerID, models.ReportStatusSubmitted).
		Order("submitted_at ASC, id ASC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("查询待审批报销单失败: %w", err)
	}
	return reports, nil
}

// normalizeIDs 去重并排序，拒绝空列表和 0
func normalizeIDs(ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, newError(KindValidation, "报销单至少需要一条消费记录")
	}
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, newError(KindValidation, "无效的消费记录ID")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// loadAssignableExpenses 加载可加入报销单 reportID 的消费记录：
// 必须属于 ownerID、处于草稿、未加入其他报销单，且币种相同
func loadAssignableExpenses(tx *gorm.DB, ownerID uint, ids []uint, reportID uint) ([]models.Expense, error) {
	var expenses []models.Expense
	if err := tx.Where("id IN ? AND user_id = ?", ids, ownerID).
		Order("date ASC, id ASC").
		Find(&expenses).Error; err != nil {
		return nil, fmt.Errorf("查询消费记录失败: %w", err)
	}
	if len(expenses) != len(ids) {
		found := make(map[uint]bool, len(expenses))
		for _, e := range expenses {
			found[e.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, newError(KindNotFound, "消费记录 %d 不存在", id)
			}
		}
	}
	for _, e := range expenses {
		if !e.IsDraft() {
			return nil, newError(KindInvalidState, "消费记录 %d 当前状态为 %s，只有草稿可以加入报销单", e.ID, e.Status)
		}
		if e.ReportID != nil && *e.ReportID != reportID {
			return nil, newError(KindInvalidState, "消费记录 %d 已属于报销单 %d", e.ID, *e.ReportID)
		}
		if e.Currency != expenses[0].Currency {
			return nil, newError(KindValidation, "报销单中的消费记录币种必须一致（%s 与 %s）", expenses[0].Currency, e.Currency)
		}
	}
	return expenses, nil
}

// linkExpenses 只关联仍为草稿且未加入任何报销单的记录，数量不符说明已被并发占用
func linkExpenses(tx *gorm.DB, reportID uint, ids []uint) error {
	res := tx.Model(&models.Expense{}).
		Where("id IN ? AND report_id IS NULL AND status = ?", ids, models.ExpenseStatusDraft).
		Update("report_id", reportID)
	if res.Error != nil {
		return fmt.Errorf("关联消费记录失败: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return newError(KindConflict, "部分消费记录已被其他报销单占用，请刷新后重试")
	}
	return nil
}

func unlinkExpenses(tx *gorm.DB, reportID uint) error {
	if err := tx.Model(&models.Expense{}).
		Where("report_id = ?", reportID).
		Update("report_id", nil).Error; err != nil {
		return fmt.Errorf("解除消费记录关联失败: %w", err)
	}
	return nil
}

// sumTotals 合计金额与税额
func sumTotals(expenses []models.Expense) (amount, vat int64) {
	for _, e := range expenses {
		amount += e.Amount
		vat += e.VATAmount
	}
	return amount, vat
}
