package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultCategoryColor 未指定颜色时使用的灰色
const DefaultCategoryColor = "#64748b"

// defaultCategoryColors 默认类别对应的颜色（与前端 CSS 保持一致）
var defaultCategoryColors = map[string]string{
	CategoryTravel:        "#3b82f6",
	CategoryMeals:         "#ef4444",
	CategoryAccommodation: "#14b8a6",
	CategoryTransport:     "#a855f7",
	CategoryOffice:        "#f59e0b",
	CategorySoftware:      "#10b981",
	CategoryTraining:      "#ec4899",
}

// ExpenseCategory 消费类别（后台维护）
type ExpenseCategory struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"size:50;not null;uniqueIndex"`
	Sort      int            `json:"sort" gorm:"default:0;index"`
	Color     string         `json:"color" gorm:"size:20;default:#64748b"` // 颜色代码，如 #ef4444
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (ExpenseCategory) TableName() string {
	return "expense_categories"
}

// DefaultExpenseCategories 按 GetCategories 顺序生成默认类别，用于空表初始化
func DefaultExpenseCategories() []ExpenseCategory {
	names := GetCategories()
	cats := make([]ExpenseCategory, 0, len(names))
	for i, name := range names {
		color := defaultCategoryColors[name]
		if color == "" {
			color = DefaultCategoryColor
		}
		cats = append(cats, ExpenseCategory{Name: name, Sort: (i + 1) * 10, Color: color})
	}
	return cats
}
