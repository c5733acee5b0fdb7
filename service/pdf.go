package service

import (
	"bytes"
	"context"
	"fmt"

	"expensetracker/models"

	"codeberg.org/go-pdf/fpdf"
	"go.uber.org/zap"
)

// BlobReader 读取票据文件
type BlobReader interface {
	Get(ctx context.Context, id string) (*BlobObject, error)
}

// ReportRenderer 把报销单渲染为 PDF：汇总页、明细表，以及每张票据一页
// 内置字体只支持 Latin-1，文档统一使用英文
type ReportRenderer struct {
	blobs  BlobReader
	logger *zap.Logger
}

// NewReportRenderer 创建 PDF 渲染器，blobs 为 nil 时不附带票据页
func NewReportRenderer(blobs BlobReader, logger *zap.Logger) *ReportRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportRenderer{blobs: blobs, logger: logger.Named("pdf")}
}

// ReportPDFFilename 报销单 PDF 的文件名
func ReportPDFFilename(report *models.ExpenseReport) string {
	return fmt.Sprintf("expense-report-%d.pdf", report.ID)
}

// reportCurrency 报销单的币种，取第一条消费记录的币种
func reportCurrency(report *models.ExpenseReport) string {
	if len(report.Expenses) > 0 {
		return report.Expenses[0].Currency
	}
	return ""
}

// 明细表列宽（mm），合计 190 = A4 宽度减去左右边距
var expenseColumns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 22, "L"},
	{"Title", 48, "L"},
	{"Supplier", 34, "L"},
	{"Category", 28, "L"},
	{"Amount", 29, "R"},
	{"VAT", 29, "R"},
}

// RenderReportPDF 渲染报销单 PDF
func (r *ReportRenderer) RenderReportPDF(ctx context.Context, report *models.ExpenseReport) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(report.Title, true)
	pdf.SetCreator("expense-tracker", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	currency := reportCurrency(report)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Expense report: "+report.Title), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	summary := [][2]string{
		{"Report ID", fmt.Sprintf("%d", report.ID)},
		{"Employee", report.User.DisplayName()},
		{"Status", string(report.Status)},
		{"Total amount", FormatAmount(report.TotalAmount, currency)},
		{"Total VAT", FormatAmount(report.TotalVATAmount, currency)},
		{"Book total", FormatAmount(report.BookTotal(), currency)},
	}
	if report.Approver != nil {
		summary = append(summary, [2]string{"Approver", report.Approver.DisplayName()})
	}
	if report.SubmittedAt != nil {
		summary = append(summary, [2]string{"Submitted", report.SubmittedAt.Format("2006-01-02 15:04")})
	}
	if report.DecisionAt != nil {
		summary = append(summary, [2]string{"Approved", report.DecisionAt.Format("2006-01-02 15:04")})
	}
	for _, row := range summary {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 7, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// 明细表
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range expenseColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for i, e := range report.Expenses {
		fill := i%2 == 1
		pdf.SetFillColor(241, 245, 249)
		cells := []string{
			e.Date.Format("2006-01-02"),
			truncate(e.Title, 30),
			truncate(e.Supplier, 20),
			truncate(e.Category, 16),
			FormatAmount(e.Amount, e.Currency),
			FormatAmount(e.VATAmount, e.Currency),
		}
		for j, col := range expenseColumns {
			pdf.CellFormat(col.width, 7, tr(cells[j]), "1", 0, col.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 9)
	labelWidth := 0.0
	for _, col := range expenseColumns[:4] {
		labelWidth += col.width
	}
	pdf.CellFormat(labelWidth, 7, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(expenseColumns[4].width, 7, FormatAmount(report.TotalAmount, currency), "1", 0, "R", false, 0, "")
	pdf.CellFormat(expenseColumns[5].width, 7, FormatAmount(report.TotalVATAmount, currency), "1", 1, "R", false, 0, "")

	r.addBookSection(pdf, tr, report, currency)
	r.addReceiptPages(ctx, pdf, tr, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("生成 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// addBookSection 列出需要记账的消费
func (r *ReportRenderer) addBookSection(pdf *fpdf.Fpdf, tr func(string) string, report *models.ExpenseReport, currency string) {
	var booked []models.Expense
	for _, e := range report.Expenses {
		if e.Book {
			booked = append(booked, e)
		}
	}
	if len(booked) == 0 {
		return
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Booked expenses", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, e := range booked {
		pdf.CellFormat(140, 6, tr(truncate(e.Title, 60)), "B", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, FormatAmount(e.BookAmount, e.Currency), "B", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(140, 6, "Book total", "", 0, "R", false, 0, "")
	pdf.CellFormat(50, 6, FormatAmount(report.BookTotal(), currency), "", 1, "R", false, 0, "")
}

// addReceiptPages 每张票据一页；图片直接嵌入，其他格式只列出文件信息
func (r *ReportRenderer) addReceiptPages(ctx context.Context, pdf *fpdf.Fpdf, tr func(string) string, report *models.ExpenseReport) {
	if r.blobs == nil {
		return
	}
	for _, e := range report.Expenses {
		if e.ReceiptBlobID == nil {
			continue
		}
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Receipt: %s (%s)", e.Title, FormatAmount(e.Amount, e.Currency))), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)

		obj, err := r.blobs.Get(ctx, *e.ReceiptBlobID)
		if err != nil {
			r.logger.Warn("读取票据失败", zap.Uint("expense_id", e.ID), zap.String("blob_id", *e.ReceiptBlobID), zap.Error(err))
			pdf.CellFormat(0, 7, "Receipt file is unavailable.", "", 1, "L", false, 0, "")
			continue
		}

		imageType := ""
		switch obj.Mimetype {
		case "image/jpeg":
			imageType = "JPG"
		case "image/png":
			imageType = "PNG"
		}
		if imageType == "" {
			pdf.CellFormat(0, 7, tr(fmt.Sprintf("Attached file: %s (%s, %d bytes)", obj.Filename, obj.Mimetype, obj.Size)), "", 1, "L", false, 0, "")
			continue
		}

		name := "receipt-" + obj.ID
		info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType, ReadDpi: true}, bytes.NewReader(obj.Data))
		if pdf.Err() || info == nil {
			// 图片损坏时清除错误，继续渲染其余内容
			r.logger.Warn("票据图片无法解析", zap.Uint("expense_id", e.ID), zap.Error(pdf.Error()))
			pdf.ClearError()
			pdf.CellFormat(0, 7, "Receipt image could not be decoded.", "", 1, "L", false, 0, "")
			continue
		}
		w, h := fitImage(info.Width(), info.Height(), 190, 250)
		pdf.ImageOptions(name, 10, pdf.GetY()+2, w, h, false, fpdf.ImageOptions{ImageType: imageType}, 0, "")
	}
}

// fitImage 等比缩放到最大宽高以内
func fitImage(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, 0
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
