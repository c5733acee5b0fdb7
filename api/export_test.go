package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportHandler_ExportCSV(t *testing.T) {
	env := newAPIEnv(t)
	env.createExpense(t, env.employee, "Train", 1050)
	env.createExpense(t, env.manager, "Not mine", 700)

	w := env.do(t, env.employee, http.MethodGet, "/api/v1/export/csv?start_date=2024-02-01&end_date=2024-02-29", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "expenses_2024-02-01_2024-02-29.csv")

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(w.Body.String(), "\xEF\xBB\xBF")), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "金额")
	assert.Contains(t, lines[1], "Train")
	assert.Contains(t, lines[1], "10.50")
	assert.Contains(t, lines[1], "DRAFT")
}

func TestExportHandler_ExportCSV_MissingParams(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, env.employee, http.MethodGet, "/api/v1/export/csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/export/csv?start_date=2024-02-01&end_date=bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandler_ExportJSON(t *testing.T) {
	env := newAPIEnv(t)
	env.createExpense(t, env.employee, "Train", 1000)
	w := env.do(t, env.employee, http.MethodPost, "/api/v1/expenses", gin.H{
		"title": "Hotel", "date": "2024-02-21", "amount": 3000, "currency": "USD", "category": "Travel",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.employee, http.MethodGet, "/api/v1/export/json?start_date=2024-02-01&end_date=2024-02-29", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		TotalCount int              `json:"total_count"`
		Totals     map[string]int64 `json:"totals"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, 2, data.TotalCount)
	assert.Equal(t, map[string]int64{"EUR": 1000, "USD": 3000}, data.Totals)
}
