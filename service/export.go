package service

import (
	"fmt"

	"expensetracker/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReportXLSXFilename 报销单 Excel 的文件名
func ReportXLSXFilename(report *models.ExpenseReport) string {
	return fmt.Sprintf("expense-report-%d.xlsx", report.ID)
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
}

// minorToMajor 最小货币单位转为带两位小数的数值，供表格计算使用
func minorToMajor(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}

// ExportReportXLSX 导出报销单明细为 Excel
func ExportReportXLSX(report *models.ExpenseReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "报销明细"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, err
	}
	dataStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{
		NumFmt:    4, // #,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, err
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		NumFmt:    4,
		Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, err
	}

	widths := map[string]float64{"A": 12, "B": 30, "C": 20, "D": 16, "E": 8, "F": 14, "G": 14, "H": 8, "I": 14}
	for col, w := range widths {
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, err
		}
	}

	headers := []string{"日期", "标题", "供应商", "类别", "币种", "金额", "增值税", "记账", "记账金额"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, e := range report.Expenses {
		row := i + 2
		book := "否"
		if e.Book {
			book = "是"
		}
		values := []interface{}{
			e.Date.Format("2006-01-02"),
			e.Title,
			e.Supplier,
			e.Category,
			e.Currency,
			minorToMajor(e.Amount),
			minorToMajor(e.VATAmount),
			book,
			minorToMajor(e.BookAmount),
		}
		for j, v := range values {
			f.SetCellValue(sheetName, fmt.Sprintf("%c%d", 'A'+j, row), v)
		}
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), dataStyle)
		f.SetCellStyle(sheetName, fmt.Sprintf("F%d", row), fmt.Sprintf("G%d", row), amountStyle)
		f.SetCellStyle(sheetName, fmt.Sprintf("H%d", row), fmt.Sprintf("H%d", row), dataStyle)
		f.SetCellStyle(sheetName, fmt.Sprintf("I%d", row), fmt.Sprintf("I%d", row), amountStyle)
	}

	// 汇总行使用报销单上的合计快照
	summaryRow := len(report.Expenses) + 2
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("合计（共 %d 条）", len(report.Expenses)))
	f.MergeCell(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("E%d", summaryRow))
	f.SetCellValue(sheetName, fmt.Sprintf("F%d", summaryRow), minorToMajor(report.TotalAmount))
	f.SetCellValue(sheetName, fmt.Sprintf("G%d", summaryRow), minorToMajor(report.TotalVATAmount))
	f.SetCellValue(sheetName, fmt.Sprintf("I%d", summaryRow), minorToMajor(report.BookTotal()))
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("I%d", summaryRow), summaryStyle)

	// 报销单信息
	infoSheet := "报销单"
	if _, err := f.NewSheet(infoSheet); err != nil {
		return nil, err
	}
	rows := [][2]interface{}{
		{"报销单ID", report.ID},
		{"标题", report.Title},
		{"状态", string(report.Status)},
		{"员工", report.User.DisplayName()},
		{"合计金额", minorToMajor(report.TotalAmount)},
		{"增值税合计", minorToMajor(report.TotalVATAmount)},
		{"记账合计", minorToMajor(report.BookTotal())},
	}
	if report.Approver != nil {
		rows = append(rows, [2]interface{}{"审批人", report.Approver.DisplayName()})
	}
	if report.RejectionReason != "" {
		rows = append(rows, [2]interface{}{"上次驳回原因", report.RejectionReason})
	}
	for i, r := range rows {
		f.SetCellValue(infoSheet, fmt.Sprintf("A%d", i+1), r[0])
		f.SetCellValue(infoSheet, fmt.Sprintf("B%d", i+1), r[1])
	}
	f.SetColWidth(infoSheet, "A", "A", 14)
	f.SetColWidth(infoSheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成 Excel 失败: %w", err)
	}
	return buf.Bytes(), nil
}
