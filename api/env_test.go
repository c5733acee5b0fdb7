package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"expensetracker/config"
	"expensetracker/database"
	"expensetracker/middleware"
	"expensetracker/models"
	"expensetracker/service"
	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testResponse 统一响应结构，data 延迟解析
type testResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) testResponse {
	t.Helper()
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	resp := decodeResponse(t, w)
	require.NoError(t, json.Unmarshal(resp.Data, v), string(resp.Data))
}

// recordingMailer 记录发出的通知
type recordingMailer struct {
	mu    sync.Mutex
	sent  []string
	pdfs  [][]byte
	tests []string
}

func (m *recordingMailer) NotifySubmission(_ context.Context, report *models.ExpenseReport, _, manager *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("submitted:%d:%s", report.ID, manager.Username))
	return nil
}

func (m *recordingMailer) NotifyApproval(_ context.Context, report *models.ExpenseReport, employee *models.User, _ string, pdf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("approved:%d:%s", report.ID, employee.Username))
	m.pdfs = append(m.pdfs, pdf)
	return nil
}

func (m *recordingMailer) NotifyRejection(_ context.Context, report *models.ExpenseReport, employee, _ *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("rejected:%d:%s", report.ID, employee.Username))
	return nil
}

func (m *recordingMailer) SendTestEmail(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests = append(m.tests, to)
	return nil
}

// apiEnv 基于内存 SQLite 的完整处理器环境
type apiEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	settings *config.Settings
	mailer   *recordingMailer
	employee *models.User
	manager  *models.User
	admin    *models.User
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)

	oldDB := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = oldDB
		_ = sqlDB.Close()
	})

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "debug"},
		JWT:     config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
		Storage: config.StorageConfig{BlobDir: t.TempDir(), MaxUploadMB: 1},
	}
	middleware.InitJWT(cfg)

	settings := config.NewSettings(config.ExpenseConfig{
		VATRate:         0.15,
		FinanceEmail:    "finance@example.com",
		DefaultCurrency: "EUR",
	})
	mailer := &recordingMailer{}
	blobs := service.NewLocalBlobStore(db, cfg.Storage.BlobDir, nil)
	renderer := service.NewReportRenderer(blobs, nil)
	wf := workflow.NewService(db, nil)
	wf.UseDefaultHooks(mailer, renderer, settings)
	expenses := workflow.NewExpenseStore(db, settings, blobs, nil)

	expenseHandler := NewExpenseHandler(expenses, blobs, cfg.Storage.MaxUploadMB)
	reportHandler := NewReportHandler(wf, renderer)
	managerHandler := NewManagerHandler(wf)
	settingsHandler := NewSettingsHandler(settings, mailer)
	categoryHandler := NewCategoryHandler()
	exportHandler := NewExportHandler()

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.GET("/categories", categoryHandler.Public)
	authed := v1.Group("", middleware.JWTAuth())
	authed.POST("/expenses", expenseHandler.Create)
	authed.GET("/expenses", expenseHandler.List)
	authed.GET("/expenses/statistics", expenseHandler.GetStatistics)
	authed.GET("/expenses/:id", expenseHandler.Get)
	authed.PUT("/expenses/:id", expenseHandler.Update)
	authed.DELETE("/expenses/:id", expenseHandler.Delete)
	authed.POST("/expenses/:id/receipt", expenseHandler.UploadReceipt)
	authed.GET("/expenses/:id/receipt", expenseHandler.DownloadReceipt)
	authed.POST("/reports", reportHandler.Create)
	authed.GET("/reports", reportHandler.List)
	authed.GET("/reports/:id", reportHandler.Get)
	authed.PUT("/reports/:id", reportHandler.Update)
	authed.DELETE("/reports/:id", reportHandler.Delete)
	authed.POST("/reports/:id/submit", reportHandler.Submit)
	authed.POST("/reports/:id/approve", reportHandler.Approve)
	authed.POST("/reports/:id/reject", reportHandler.Reject)
	authed.GET("/reports/:id/pdf", reportHandler.DownloadPDF)
	authed.GET("/reports/:id/export", reportHandler.Export)
	authed.GET("/approvals", reportHandler.PendingApprovals)
	authed.GET("/managers", managerHandler.ListManagers)
	authed.POST("/managers", managerHandler.AddManager)
	authed.DELETE("/managers/:id", managerHandler.RemoveManager)
	authed.GET("/employees", managerHandler.ListEmployees)
	authed.GET("/export/csv", exportHandler.ExportCSV)
	authed.GET("/export/json", exportHandler.ExportJSON)
	authed.GET("/settings", settingsHandler.Get)
	admin := authed.Group("/admin", middleware.RequireAdmin())
	admin.GET("/categories", categoryHandler.List)
	admin.POST("/categories", categoryHandler.Create)
	admin.PUT("/categories/:id", categoryHandler.Update)
	admin.DELETE("/categories/:id", categoryHandler.Delete)
	admin.PUT("/settings", settingsHandler.Update)
	admin.POST("/settings/test-email", settingsHandler.SendTestEmail)

	env := &apiEnv{db: db, router: r, settings: settings, mailer: mailer}
	env.employee = env.createUser(t, "employee", false)
	env.manager = env.createUser(t, "manager", false)
	env.admin = env.createUser(t, "admin", true)
	return env
}

func (e *apiEnv) createUser(t *testing.T, username string, isAdmin bool) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Password: "x",
		Name:     username,
		Email:    username + "@example.com",
		IsAdmin:  isAdmin,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *apiEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := middleware.GenerateToken(user.ID, user.Username, time.Hour)
	require.NoError(t, err)
	return token
}

// do 以 user 身份发送 JSON 请求，user 为 nil 时不带 token
func (e *apiEnv) do(t *testing.T, user *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) upload(t *testing.T, user *models.User, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createExpense 通过接口创建一条草稿消费记录
func (e *apiEnv) createExpense(t *testing.T, user *models.User, title string, amount int64) models.Expense {
	t.Helper()
	w := e.do(t, user, http.MethodPost, "/api/v1/expenses", gin.H{
		"title":       title,
		"date":        "2024-02-20",
		"amount":      amount,
		"category":    models.CategoryTravel,
		"vat_applied": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var expense models.Expense
	decodeData(t, w, &expense)
	return expense
}

func (e *apiEnv) relate(t *testing.T, employee, manager *models.User) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.ManagementRelationship{
		EmployeeID: employee.ID,
		ManagerID:  manager.ID,
	}).Error)
}
