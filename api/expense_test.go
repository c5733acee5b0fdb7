package api

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"expensetracker/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExpenseHandler_Create(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, env.employee, http.MethodPost, "/api/v1/expenses", gin.H{
		"title":       "Hotel",
		"supplier":    "Hotel Adlon",
		"date":        "2024-02-20",
		"amount":      1000,
		"category":    models.CategoryAccommodation,
		"vat_applied": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "创建成功", decodeResponse(t, w).Message)

	var expense models.Expense
	decodeData(t, w, &expense)
	assert.Equal(t, int64(1000), expense.Amount)
	assert.Equal(t, int64(150), expense.VATAmount)
	assert.Equal(t, "EUR", expense.Currency)
	assert.Equal(t, models.ExpenseStatusDraft, expense.Status)
	assert.Nil(t, expense.ReportID)
}

func TestExpenseHandler_Create_Invalid(t *testing.T) {
	env := newAPIEnv(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing title", gin.H{"date": "2024-02-20", "amount": 100, "category": models.CategoryTravel}},
		{"bad date", gin.H{"title": "x", "date": "20.02.2024", "amount": 100, "category": models.CategoryTravel}},
		{"zero amount", gin.H{"title": "x", "date": "2024-02-20", "amount": 0, "category": models.CategoryTravel}},
		{"unknown category", gin.H{"title": "x", "date": "2024-02-20", "amount": 100, "category": "无效类别"}},
		{"bad currency", gin.H{"title": "x", "date": "2024-02-20", "amount": 100, "category": models.CategoryTravel, "currency": "euro"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, env.employee, http.MethodPost, "/api/v1/expenses", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestExpenseHandler_RequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, nil, http.MethodGet, "/api/v1/expenses", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExpenseHandler_ListAndGet(t *testing.T) {
	env := newAPIEnv(t)
	a := env.createExpense(t, env.employee, "Train", 1000)
	b := env.createExpense(t, env.employee, "Taxi", 500)
	env.createExpense(t, env.manager, "Other user", 700)

	w := env.do(t, env.employee, http.MethodPost, "/api/v1/reports", gin.H{
		"title":       "Trip",
		"expense_ids": []uint{a.ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total    int64            `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		List     []models.Expense `json:"list"`
	}
	decodeData(t, w, &page)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.List, 2)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses?unassigned=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &page)
	require.Len(t, page.List, 1)
	assert.Equal(t, b.ID, page.List[0].ID)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.employee, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d", b.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 其他用户的记录不可见
	w = env.do(t, env.manager, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d", b.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExpenseHandler_UpdateAndDelete(t *testing.T) {
	env := newAPIEnv(t)
	e := env.createExpense(t, env.employee, "Train", 1000)

	w := env.do(t, env.employee, http.MethodPut, fmt.Sprintf("/api/v1/expenses/%d", e.ID), gin.H{
		"amount": 2000,
		"date":   "2024-03-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Expense
	decodeData(t, w, &updated)
	assert.Equal(t, int64(2000), updated.Amount)
	assert.Equal(t, int64(300), updated.VATAmount)
	assert.Equal(t, "2024-03-01", updated.Date.Format(dateLayout))

	w = env.do(t, env.employee, http.MethodPut, fmt.Sprintf("/api/v1/expenses/%d", e.ID), gin.H{"date": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.employee, http.MethodDelete, fmt.Sprintf("/api/v1/expenses/%d", e.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, env.employee, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d", e.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpenseHandler_LockedAfterSubmit(t *testing.T) {
	env := newAPIEnv(t)
	env.relate(t, env.employee, env.manager)
	e := env.createExpense(t, env.employee, "Train", 1000)

	w := env.do(t, env.employee, http.MethodPost, "/api/v1/reports", gin.H{"title": "Trip", "expense_ids": []uint{e.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	var report models.ExpenseReport
	decodeData(t, w, &report)
	w = env.do(t, env.employee, http.MethodPost, fmt.Sprintf("/api/v1/reports/%d/submit", report.ID), gin.H{"manager_id": env.manager.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.employee, http.MethodPut, fmt.Sprintf("/api/v1/expenses/%d", e.ID), gin.H{"title": "changed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, env.employee, http.MethodDelete, fmt.Sprintf("/api/v1/expenses/%d", e.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.upload(t, env.employee, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), "r.png", pngBytes(t))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExpenseHandler_Receipt(t *testing.T) {
	env := newAPIEnv(t)
	env.relate(t, env.employee, env.manager)
	e := env.createExpense(t, env.employee, "Train", 1000)
	data := pngBytes(t)

	w := env.upload(t, env.employee, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), "ticket.png", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var withReceipt models.Expense
	decodeData(t, w, &withReceipt)
	require.NotNil(t, withReceipt.ReceiptBlobID)

	w = env.do(t, env.employee, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ticket.png")
	assert.Equal(t, data, w.Body.Bytes())

	// 审批人在报销单提交前看不到票据
	w = env.do(t, env.manager, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, env.employee, http.MethodPost, "/api/v1/reports", gin.H{"title": "Trip", "expense_ids": []uint{e.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	var report models.ExpenseReport
	decodeData(t, w, &report)
	w = env.do(t, env.employee, http.MethodPost, fmt.Sprintf("/api/v1/reports/%d/submit", report.ID), gin.H{"manager_id": env.manager.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, env.manager, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpenseHandler_Receipt_Invalid(t *testing.T) {
	env := newAPIEnv(t)
	e := env.createExpense(t, env.employee, "Train", 1000)

	// 没有 file 字段
	w := env.do(t, env.employee, http.MethodPost, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 超过 1 MB
	w = env.upload(t, env.employee, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), "big.bin", make([]byte, 1<<20+1))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 还没有票据
	w = env.do(t, env.employee, http.MethodGet, fmt.Sprintf("/api/v1/expenses/%d/receipt", e.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpenseHandler_GetStatistics(t *testing.T) {
	env := newAPIEnv(t)
	env.createExpense(t, env.employee, "Train", 1000)
	env.createExpense(t, env.employee, "Taxi", 500)

	w := env.do(t, env.employee, http.MethodGet, "/api/v1/expenses/statistics?start_date=2024-02-01&end_date=2024-02-29", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats []CategoryStat
	decodeData(t, w, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, models.CategoryTravel, stats[0].Category)
	assert.Equal(t, int64(1500), stats[0].Total)
	assert.Equal(t, int64(2), stats[0].Count)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses/statistics?end_date=2024-01-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &stats)
	assert.Empty(t, stats)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/expenses/statistics?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
