package workflow

import "expensetracker/models"

// validReportTransitions 报销单状态迁移表：当前状态 -> 允许的下一状态
// APPROVED 为终态，驳回即 SUBMITTED -> DRAFT
var validReportTransitions = map[models.ReportStatus][]models.ReportStatus{
	models.ReportStatusDraft:     {models.ReportStatusSubmitted},
	models.ReportStatusSubmitted: {models.ReportStatusApproved, models.ReportStatusDraft},
	models.ReportStatusApproved:  {},
}

// validateTransition 校验状态迁移是否合法
func validateTransition(from, to models.ReportStatus) error {
	allowed, ok := validReportTransitions[from]
	if !ok {
		return newError(KindInvalidState, "未知的报销单状态: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return newError(KindInvalidState, "报销单状态不允许从 %s 变更为 %s", from, to)
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to models.ReportStatus) bool {
	return validateTransition(from, to) == nil
}
