package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"expensetracker/config"
	"expensetracker/models"
	"expensetracker/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ReceiptStore 票据文件存储
type ReceiptStore interface {
	Put(ctx context.Context, ownerID uint, filename string, data []byte) (*models.Blob, error)
	Delete(ctx context.Context, id string) error
}

// ExpenseStore 消费记录的增删改查，只允许修改草稿
// 状态字段只由报销单工作流写入
type ExpenseStore struct {
	db       *gorm.DB
	settings config.SettingsProvider
	receipts ReceiptStore
	logger   *zap.Logger
}

// NewExpenseStore 创建消费记录服务
func NewExpenseStore(db *gorm.DB, settings config.SettingsProvider, receipts ReceiptStore, logger *zap.Logger) *ExpenseStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpenseStore{
		db:       db,
		settings: settings,
		receipts: receipts,
		logger:   logger.Named("expense"),
	}
}

// ExpenseInput 新建消费记录的内容，金额为最小货币单位
type ExpenseInput struct {
	Title       string
	Description string
	Supplier    string
	Date        time.Time
	Amount      int64
	Currency    string
	Category    string
	VATApplied  bool
	VATAmount   *int64
	Book        bool
	BookAmount  *int64
}

// ExpensePatch 消费记录修改内容，nil 字段保持不变
type ExpensePatch struct {
	Title       *string
	Description *string
	Supplier    *string
	Date        *time.Time
	Amount      *int64
	Currency    *string
	Category    *string
	VATApplied  *bool
	VATAmount   *int64
	Book        *bool
	BookAmount  *int64
}

// ExpenseFilter 消费记录列表筛选
type ExpenseFilter struct {
	Status     models.ExpenseStatus
	Category   string
	Unassigned bool
	Page       int
	PageSize   int
}

// Create 新建草稿消费记录
func (s *ExpenseStore) Create(ctx context.Context, ownerID uint, in ExpenseInput) (*models.Expense, error) {
	db := s.db.WithContext(ctx)
	expense := &models.Expense{
		UserID:      ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Supplier:    strings.TrimSpace(in.Supplier),
		Date:        in.Date,
		Amount:      in.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Category:    strings.TrimSpace(in.Category),
		VATApplied:  in.VATApplied,
		Book:        in.Book,
		Status:      models.ExpenseStatusDraft,
	}
	if expense.Currency == "" {
		expense.Currency = s.settings.DefaultCurrency()
	}
	if err := s.validate(db, expense, in.VATAmount, in.BookAmount); err != nil {
		return nil, err
	}
	expense.VATAmount = service.ComputeVAT(expense.Amount, expense.VATApplied, in.VATAmount, s.settings.VATRate())
	expense.BookAmount = bookAmount(expense.Book, expense.Amount, in.BookAmount)

	if err := db.Create(expense).Error; err != nil {
		return nil, fmt.Errorf("创建消费记录失败: %w", err)
	}
	return expense, nil
}

// Update 修改草稿消费记录；金额或增值税开关变化且未给出税额时按当前税率重新计算
func (s *ExpenseStore) Update(ctx context.Context, ownerID, id uint, patch ExpensePatch) (*models.Expense, error) {
	db := s.db.WithContext(ctx)
	expense, err := s.loadOwned(db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !expense.IsDraft() {
		return nil, newError(KindInvalidState, "消费记录当前状态为 %s，只有草稿可以修改", expense.Status)
	}

	prevAmount, prevVAT, prevBook := expense.Amount, expense.VATApplied, expense.Book
	if patch.Title != nil {
		expense.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		expense.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Supplier != nil {
		expense.Supplier = strings.TrimSpace(*patch.Supplier)
	}
	if patch.Date != nil {
		expense.Date = *patch.Date
	}
	if patch.Amount != nil {
		expense.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*patch.Currency))
		if expense.ReportID != nil && currency != expense.Currency {
			return nil, newError(KindValidation, "消费记录已加入报销单 %d，不能修改币种", *expense.ReportID)
		}
		expense.Currency = currency
	}
	if patch.Category != nil {
		expense.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.VATApplied != nil {
		expense.VATApplied = *patch.VATApplied
	}
	if patch.Book != nil {
		expense.Book = *patch.Book
	}
	if err := s.validate(db, expense, patch.VATAmount, patch.BookAmount); err != nil {
		return nil, err
	}

	switch {
	case patch.VATAmount != nil || !expense.VATApplied:
		expense.VATAmount = service.ComputeVAT(expense.Amount, expense.VATApplied, patch.VATAmount, s.settings.VATRate())
	case expense.Amount != prevAmount || !prevVAT:
		expense.VATAmount = service.ComputeVAT(expense.Amount, true, nil, s.settings.VATRate())
	}
	switch {
	case patch.BookAmount != nil || !expense.Book:
		expense.BookAmount = bookAmount(expense.Book, expense.Amount, patch.BookAmount)
	case expense.Amount != prevAmount || !prevBook:
		expense.BookAmount = expense.Amount
	}

	res := db.Model(&models.Expense{}).
		Where("id = ? AND status = ?", expense.ID, models.ExpenseStatusDraft).
		Updates(map[string]interface{}{
			"title":       expense.Title,
			"description": expense.Description,
			"supplier":    expense.Supplier,
			"date":        expense.Date,
			"amount":      expense.Amount,
			"currency":    expense.Currency,
			"category":    expense.Category,
			"vat_applied": expense.VATApplied,
			"vat_amount":  expense.VATAmount,
			"book":        expense.Book,
			"book_amount": expense.BookAmount,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("更新消费记录失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindInvalidState, "消费记录 %d 已不是草稿", id)
	}
	return s.loadOwned(db, ownerID, id)
}

// Delete 删除草稿消费记录并尽力删除其票据文件
func (s *ExpenseStore) Delete(ctx context.Context, ownerID, id uint) error {
	db := s.db.WithContext(ctx)
	expense, err := s.loadOwned(db, ownerID, id)
	if err != nil {
		return err
	}
	if !expense.IsDraft() {
		return newError(KindInvalidState, "消费记录当前状态为 %s，只有草稿可以删除", expense.Status)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Expense{}).Where("id = ?", id).Update("report_id", nil).Error; err != nil {
			return fmt.Errorf("解除报销单关联失败: %w", err)
		}
		res := tx.Where("status = ?", models.ExpenseStatusDraft).Delete(&models.Expense{}, id)
		if res.Error != nil {
			return fmt.Errorf("删除消费记录失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(KindInvalidState, "消费记录 %d 已不是草稿", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if expense.ReceiptBlobID != nil {
		s.deleteReceipt(ctx, *expense.ReceiptBlobID)
	}
	return nil
}

// AttachReceipt 上传票据并关联到草稿消费记录，替换的旧票据会被删除
func (s *ExpenseStore) AttachReceipt(ctx context.Context, ownerID, id uint, filename string, data []byte) (*models.Expense, error) {
	if len(data) == 0 {
		return nil, newError(KindValidation, "票据文件为空")
	}
	db := s.db.WithContext(ctx)
	expense, err := s.loadOwned(db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !expense.IsDraft() {
		return nil, newError(KindInvalidState, "消费记录当前状态为 %s，只有草稿可以上传票据", expense.Status)
	}

	blob, err := s.receipts.Put(ctx, ownerID, filename, data)
	if err != nil {
		return nil, fmt.Errorf("保存票据失败: %w", err)
	}

	res := db.Model(&models.Expense{}).
		Where("id = ? AND status = ?", id, models.ExpenseStatusDraft).
		Update("receipt_blob_id", blob.ID)
	if res.Error != nil || res.RowsAffected == 0 {
		s.deleteReceipt(ctx, blob.ID)
		if res.Error != nil {
			return nil, fmt.Errorf("关联票据失败: %w", res.Error)
		}
		return nil, newError(KindInvalidState, "消费记录 %d 已不是草稿", id)
	}

	if expense.ReceiptBlobID != nil {
		s.deleteReceipt(ctx, *expense.ReceiptBlobID)
	}
	expense.ReceiptBlobID = &blob.ID
	return expense, nil
}

// ReceiptBlobID 返回 userID 可读取的票据 ID：消费记录所有人，或其所在报销单的审批人
func (s *ExpenseStore) ReceiptBlobID(ctx context.Context, userID, id uint) (string, error) {
	db := s.db.WithContext(ctx)
	var expense models.Expense
	err := db.First(&expense, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", newError(KindNotFound, "消费记录 %d 不存在", id)
	}
	if err != nil {
		return "", fmt.Errorf("查询消费记录失败: %w", err)
	}

	if expense.UserID != userID {
		if expense.ReportID == nil {
			return "", newError(KindNotFound, "消费记录 %d 不存在", id)
		}
		report, err := loadReport(db, *expense.ReportID)
		if err != nil {
			return "", err
		}
		if !report.IsApprover(userID) {
			return "", newError(KindNotFound, "消费记录 %d 不存在", id)
		}
	}
	if expense.ReceiptBlobID == nil {
		return "", newError(KindNotFound, "消费记录 %d 没有票据", id)
	}
	return *expense.ReceiptBlobID, nil
}

// Get 查询本人的消费记录
func (s *ExpenseStore) Get(ctx context.Context, ownerID, id uint) (*models.Expense, error) {
	return s.loadOwned(s.db.WithContext(ctx), ownerID, id)
}

// List 分页查询本人的消费记录
func (s *ExpenseStore) List(ctx context.Context, ownerID uint, f ExpenseFilter) ([]models.Expense, int64, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, 0, newError(KindValidation, "无效的消费记录状态: %s", f.Status)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	query := s.db.WithContext(ctx).Model(&models.Expense{}).Where("user_id = ?", ownerID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Unassigned {
		query = query.Where("report_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计消费记录失败: %w", err)
	}
	var expenses []models.Expense
	offset := (f.Page - 1) * f.PageSize
	if err := query.Order("date DESC, id DESC").Offset(offset).Limit(f.PageSize).Find(&expenses).Error; err != nil {
		return nil, 0, fmt.Errorf("查询消费记录失败: %w", err)
	}
	return expenses, total, nil
}

func (s *ExpenseStore) loadOwned(db *gorm.DB, ownerID, id uint) (*models.Expense, error) {
	var expense models.Expense
	err := db.Where("id = ? AND user_id = ?", id, ownerID).First(&expense).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "消费记录 %d 不存在", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询消费记录失败: %w", err)
	}
	return &expense, nil
}

func (s *ExpenseStore) validate(db *gorm.DB, e *models.Expense, vatAmount, bookAmt *int64) error {
	if e.Title == "" {
		return newError(KindValidation, "标题不能为空")
	}
	if e.Amount <= 0 {
		return newError(KindValidation, "金额必须大于 0")
	}
	if e.Date.IsZero() {
		return newError(KindValidation, "消费日期不能为空")
	}
	if !currencyPattern.MatchString(e.Currency) {
		return newError(KindValidation, "无效的币种代码: %s", e.Currency)
	}
	if vatAmount != nil && (*vatAmount < 0 || *vatAmount > e.Amount) {
		return newError(KindValidation, "增值税额必须在 0 到金额之间")
	}
	if bookAmt != nil && *bookAmt < 0 {
		return newError(KindValidation, "记账金额不能为负数")
	}
	if e.Category == "" {
		return newError(KindValidation, "类别不能为空")
	}

	var count int64
	if err := db.Model(&models.ExpenseCategory{}).Where("name = ?", e.Category).Count(&count).Error; err != nil {
		return fmt.Errorf("查询消费类别失败: %w", err)
	}
	if count == 0 {
		return newError(KindValidation, "无效的消费类别，请先在后台维护类别")
	}
	return nil
}

func (s *ExpenseStore) deleteReceipt(ctx context.Context, blobID string) {
	if err := s.receipts.Delete(ctx, blobID); err != nil {
		s.logger.Warn("删除票据文件失败", zap.String("blob_id", blobID), zap.Error(err))
	}
}

// bookAmount 未记账时为 0；记账且未显式给出时等于消费金额
func bookAmount(book bool, amount int64, explicit *int64) int64 {
	if !book {
		return 0
	}
	if explicit != nil {
		return *explicit
	}
	return amount
}
