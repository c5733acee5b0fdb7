package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expensetracker/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AddManager 为员工登记上级，login 可以是上级的用户名或邮箱
func (s *Service) AddManager(ctx context.Context, employeeID uint, login string) (*models.ManagementRelationship, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, newError(KindValidation, "请输入上级的用户名或邮箱")
	}

	var rel *models.ManagementRelationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var manager models.User
		err := tx.Where("username = ? OR email = ?", login, login).First(&manager).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(KindNotFound, "用户 %s 不存在", login)
		}
		if err != nil {
			return fmt.Errorf("查询用户失败: %w", err)
		}
		if manager.ID == employeeID {
			return newError(KindValidation, "不能把自己设为上级")
		}

		var count int64
		if err := tx.Model(&models.ManagementRelationship{}).
			Where("employee_id = ? AND manager_id = ?", employeeID, manager.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("查询管理关系失败: %w", err)
		}
		if count > 0 {
			return newError(KindConflict, "%s 已经是你的上级", manager.DisplayName())
		}

		rel = &models.ManagementRelationship{EmployeeID: employeeID, ManagerID: manager.ID}
		if err := tx.Create(rel).Error; err != nil {
			return fmt.Errorf("创建管理关系失败: %w", err)
		}
		rel.Manager = &manager
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("已登记上级",
		zap.Uint("employee_id", employeeID),
		zap.Uint("manager_id", rel.ManagerID))
	return rel, nil
}

// RemoveManager 解除管理关系，已提交给该上级的报销单不受影响
func (s *Service) RemoveManager(ctx context.Context, employeeID, managerID uint) error {
	res := s.db.WithContext(ctx).
		Where("employee_id = ? AND manager_id = ?", employeeID, managerID).
		Delete(&models.ManagementRelationship{})
	if res.Error != nil {
		return fmt.Errorf("删除管理关系失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindNotFound, "管理关系不存在")
	}
	return nil
}

// Managers 员工的全部上级
func (s *Service) Managers(ctx context.Context, employeeID uint) ([]models.ManagementRelationship, error) {
	var rels []models.ManagementRelationship
	if err := s.db.WithContext(ctx).
		Preload("Manager").
		Where("employee_id = ?", employeeID).
		Order("id ASC").
		Find(&rels).Error; err != nil {
		return nil, fmt.Errorf("查询上级失败: %w", err)
	}
	return rels, nil
}

// Employees 以 managerID 为上级的全部员工
func (s *Service) Employees(ctx context.Context, managerID uint) ([]models.ManagementRelationship, error) {
	var rels []models.ManagementRelationship
	if err := s.db.WithContext(ctx).
		Preload("Employee").
		Where("manager_id = ?", managerID).
		Order("id ASC").
		Find(&rels).Error; err != nil {
		return nil, fmt.Errorf("查询下属失败: %w", err)
	}
	return rels, nil
}
