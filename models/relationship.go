package models

import "time"

// ManagementRelationship 员工与上级的管理关系（employee -> manager）
// 员工只能向存在管理关系的上级提交报销单
type ManagementRelationship struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EmployeeID uint      `json:"employee_id" gorm:"not null;uniqueIndex:idx_employee_manager"`
	ManagerID  uint      `json:"manager_id" gorm:"not null;uniqueIndex:idx_employee_manager;index"`
	CreatedAt  time.Time `json:"created_at"`
	Employee   *User     `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
	Manager    *User     `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
}

// TableName 设置表名
func (ManagementRelationship) TableName() string {
	return "management_relationships"
}
