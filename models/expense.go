package models

import (
	"time"

	"gorm.io/gorm"
)

// ExpenseStatus 消费记录状态，跟随所属报销单的工作流阶段
type ExpenseStatus string

const (
	// ExpenseStatusDraft 草稿：可编辑、可删除、可加入报销单
	ExpenseStatusDraft ExpenseStatus = "DRAFT"
	// ExpenseStatusSubmitted 已提交：所属报销单等待审批，锁定
	ExpenseStatusSubmitted ExpenseStatus = "SUBMITTED"
	// ExpenseStatusCompleted 已完成：所属报销单已审批通过
	ExpenseStatusCompleted ExpenseStatus = "COMPLETED"
)

// IsValid 是否为已定义的状态
func (s ExpenseStatus) IsValid() bool {
	switch s {
	case ExpenseStatusDraft, ExpenseStatusSubmitted, ExpenseStatusCompleted:
		return true
	}
	return false
}

// Expense 消费记录模型，金额均为最小货币单位（如分）
type Expense struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	UserID        uint           `json:"user_id" gorm:"index;not null"`
	ReportID      *uint          `json:"report_id" gorm:"index"`
	Title         string         `json:"title" gorm:"size:100;not null"`
	Description   string         `json:"description" gorm:"size:255"`
	Supplier      string         `json:"supplier" gorm:"size:100"`
	Date          time.Time      `json:"date" gorm:"not null"`
	Amount        int64          `json:"amount" gorm:"not null"`
	Currency      string         `json:"currency" gorm:"size:3;not null"`
	Category      string         `json:"category" gorm:"size:50;not null"`
	VATApplied    bool           `json:"vat_applied" gorm:"default:false"`
	VATAmount     int64          `json:"vat_amount" gorm:"default:0"`
	Book          bool           `json:"book" gorm:"default:false"`
	BookAmount    int64          `json:"book_amount" gorm:"default:0"`
	ReceiptBlobID *string        `json:"receipt_blob_id" gorm:"size:36"`
	Status        ExpenseStatus  `json:"status" gorm:"size:20;not null;default:DRAFT;index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
	User          User           `json:"-" gorm:"foreignKey:UserID"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// IsDraft 草稿状态下才允许修改
func (e *Expense) IsDraft() bool {
	return e.Status == ExpenseStatusDraft
}

// Category 默认消费类别
const (
	CategoryTravel        = "Travel"
	CategoryMeals         = "Meals"
	CategoryAccommodation = "Accommodation"
	CategoryTransport     = "Transport"
	CategoryOffice        = "Office supplies"
	CategorySoftware      = "Software"
	CategoryTraining      = "Training"
	CategoryOther         = "Other"
)

// GetCategories 获取所有默认消费类别
func GetCategories() []string {
	return []string{
		CategoryTravel,
		CategoryMeals,
		CategoryAccommodation,
		CategoryTransport,
		CategoryOffice,
		CategorySoftware,
		CategoryTraining,
		CategoryOther,
	}
}
