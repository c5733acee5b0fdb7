package models

import (
	"time"

	"gorm.io/gorm"
)

// ReportStatus 报销单状态
type ReportStatus string

const (
	// ReportStatusDraft 草稿：可修改、可删除、可提交；驳回后回到此状态
	ReportStatusDraft ReportStatus = "DRAFT"
	// ReportStatusSubmitted 已提交：等待审批人审批
	ReportStatusSubmitted ReportStatus = "SUBMITTED"
	// ReportStatusApproved 已通过：终态
	ReportStatusApproved ReportStatus = "APPROVED"
)

// IsValid 是否为已定义的状态
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusSubmitted, ReportStatusApproved:
		return true
	}
	return false
}

// IsTerminal 终态不允许任何迁移
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusApproved
}

// ExpenseStatusFor 报销单状态对应的消费记录状态
func (s ReportStatus) ExpenseStatusFor() ExpenseStatus {
	switch s {
	case ReportStatusSubmitted:
		return ExpenseStatusSubmitted
	case ReportStatusApproved:
		return ExpenseStatusCompleted
	default:
		return ExpenseStatusDraft
	}
}

// ExpenseReport 报销单模型
// 合计金额为创建/修改时的快照，不在读取时重新计算
type ExpenseReport struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	UserID          uint           `json:"user_id" gorm:"index;not null"`
	ApproverID      *uint          `json:"approver_id" gorm:"index"`
	Title           string         `json:"title" gorm:"size:100;not null"`
	Status          ReportStatus   `json:"status" gorm:"size:20;not null;default:DRAFT;index"`
	TotalAmount     int64          `json:"total_amount" gorm:"not null;default:0"`
	TotalVATAmount  int64          `json:"total_vat_amount" gorm:"not null;default:0"`
	SubmittedAt     *time.Time     `json:"submitted_at"`
	DecisionAt      *time.Time     `json:"decision_at"`
	RejectionReason string         `json:"rejection_reason" gorm:"size:500"`
	Version         int            `json:"version" gorm:"not null;default:1"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
	Expenses        []Expense      `json:"expenses,omitempty" gorm:"foreignKey:ReportID"`
	User            User           `json:"-" gorm:"foreignKey:UserID"`
	Approver        *User          `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}

// TableName 设置表名
func (ExpenseReport) TableName() string {
	return "expense_reports"
}

// IsDraft 草稿状态下才允许修改和删除
func (r *ExpenseReport) IsDraft() bool {
	return r.Status == ReportStatusDraft
}

// IsApprover 判断用户是否为当前指定的审批人
func (r *ExpenseReport) IsApprover(userID uint) bool {
	return r.ApproverID != nil && *r.ApproverID == userID
}

// BookTotal 记账类消费的合计金额
func (r *ExpenseReport) BookTotal() int64 {
	var total int64
	for _, e := range r.Expenses {
		if e.Book {
			total += e.BookAmount
		}
	}
	return total
}
