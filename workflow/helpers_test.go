package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"expensetracker/config"
	"expensetracker/database"
	"expensetracker/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// setupTestDB 每个测试使用独立的内存 SQLite 库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testSettings() *config.Settings {
	return config.NewSettings(config.ExpenseConfig{
		VATRate:         0.15,
		FinanceEmail:    "finance@example.com",
		DefaultCurrency: "EUR",
	})
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Password: "x",
		Name:     username,
		Email:    username + "@example.com",
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func relate(t *testing.T, db *gorm.DB, employee, manager *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.ManagementRelationship{
		EmployeeID: employee.ID,
		ManagerID:  manager.ID,
	}).Error)
}

// memoryReceipts 内存票据存储
type memoryReceipts struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
	putErr  error
}

func newMemoryReceipts() *memoryReceipts {
	return &memoryReceipts{blobs: make(map[string][]byte)}
}

func (m *memoryReceipts) Put(_ context.Context, ownerID uint, filename string, data []byte) (*models.Blob, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.blobs[id] = data
	return &models.Blob{ID: id, OwnerID: ownerID, Filename: filename, Mimetype: "image/png", Size: int64(len(data))}, nil
}

func (m *memoryReceipts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return errors.New("blob not found")
	}
	delete(m.blobs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type sentMail struct {
	kind     string
	reportID uint
	to       []string
	pdf      []byte
}

// recordingNotifier 记录发送的通知，fail 中的类型返回错误
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]error
}

func (n *recordingNotifier) record(kind string, reportID uint, pdf []byte, to ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[kind]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMail{kind: kind, reportID: reportID, to: to, pdf: pdf})
	return nil
}

func (n *recordingNotifier) NotifySubmission(_ context.Context, r *models.ExpenseReport, _, manager *models.User) error {
	return n.record("submission", r.ID, nil, manager.Email)
}

func (n *recordingNotifier) NotifyApproval(_ context.Context, r *models.ExpenseReport, employee *models.User, finance string, pdf []byte) error {
	return n.record("approval", r.ID, pdf, employee.Email, finance)
}

func (n *recordingNotifier) NotifyRejection(_ context.Context, r *models.ExpenseReport, employee, _ *models.User) error {
	return n.record("rejection", r.ID, nil, employee.Email)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		out = append(out, m.kind)
	}
	return out
}

type stubRenderer struct {
	calls int
	err   error
}

func (r *stubRenderer) RenderReportPDF(_ context.Context, report *models.ExpenseReport) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte(fmt.Sprintf("%%PDF report %d", report.ID)), nil
}

// fixture 员工 E、上级 M，以及挂好默认后置动作的服务
type fixture struct {
	db       *gorm.DB
	wf       *Service
	expenses *ExpenseStore
	receipts *memoryReceipts
	notifier *recordingNotifier
	renderer *stubRenderer
	logs     *observer.ObservedLogs
	employee *models.User
	manager  *models.User
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	logger, logs := observedLogger()
	settings := testSettings()

	f := &fixture{
		db:       db,
		receipts: newMemoryReceipts(),
		notifier: &recordingNotifier{fail: map[string]error{}},
		renderer: &stubRenderer{},
		logs:     logs,
		now:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.wf = NewService(db, logger)
	f.wf.SetClock(func() time.Time { return f.now })
	f.wf.UseDefaultHooks(f.notifier, f.renderer, settings)
	f.expenses = NewExpenseStore(db, settings, f.receipts, logger)

	f.employee = createUser(t, db, "employee")
	f.manager = createUser(t, db, "manager")
	relate(t, db, f.employee, f.manager)
	return f
}

func (f *fixture) addExpense(t *testing.T, title string, amount int64, vat bool) *models.Expense {
	t.Helper()
	e, err := f.expenses.Create(context.Background(), f.employee.ID, ExpenseInput{
		Title:      title,
		Date:       time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
		Amount:     amount,
		Category:   models.CategoryTravel,
		VATApplied: vat,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) reloadExpense(t *testing.T, id uint) models.Expense {
	t.Helper()
	var e models.Expense
	require.NoError(t, f.db.First(&e, id).Error)
	return e
}

func (f *fixture) reloadReport(t *testing.T, id uint) models.ExpenseReport {
	t.Helper()
	var r models.ExpenseReport
	require.NoError(t, f.db.First(&r, id).Error)
	return r
}
