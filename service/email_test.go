package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"expensetracker/config"
	"expensetracker/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m...)
	return nil
}

func newTestEmailService(enabled bool) (*EmailService, *fakeSender) {
	s := NewEmailService(&config.EmailConfig{
		Enabled:  enabled,
		Username: "noreply@example.com",
		From:     "Expense Tracker",
	}, "https://expenses.example.com/")
	sender := &fakeSender{}
	s.sender = sender
	return s, sender
}

func sampleReport() *models.ExpenseReport {
	return &models.ExpenseReport{
		ID:             42,
		Title:          "Berlin <trip>",
		Status:         models.ReportStatusApproved,
		TotalAmount:    1500,
		TotalVATAmount: 225,
		Expenses: []models.Expense{
			{ID: 1, Title: "Hotel", Amount: 1000, VATAmount: 150, Currency: "EUR", Category: "Travel"},
			{ID: 2, Title: "Taxi", Amount: 500, VATAmount: 75, Currency: "EUR", Category: "Transport", Book: true, BookAmount: 500},
		},
	}
}

var (
	alice = &models.User{ID: 1, Username: "alice", Name: "Alice", Email: "alice@example.com"}
	bob   = &models.User{ID: 2, Username: "bob", Email: "bob@example.com"}
)

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestGenerateSubmissionEmailBody(t *testing.T) {
	s, _ := newTestEmailService(true)
	body := s.generateSubmissionEmailBody(sampleReport(), alice, bob)
	assert.Contains(t, body, "bob，您好")
	assert.Contains(t, body, "Alice")
	assert.Contains(t, body, "Berlin &lt;trip&gt;")
	assert.Contains(t, body, "15.00 EUR")
	assert.Contains(t, body, "2.25 EUR")
	assert.Contains(t, body, "https://expenses.example.com/reports/42")
}

func TestGenerateRejectionEmailBody(t *testing.T) {
	s, _ := newTestEmailService(true)
	r := sampleReport()
	r.RejectionReason = "Missing receipt"
	body := s.generateRejectionEmailBody(r, alice, bob)
	assert.Contains(t, body, "驳回原因：Missing receipt")
	assert.Contains(t, body, "bob")
}

func TestNotifySubmission(t *testing.T) {
	s, sender := newTestEmailService(true)
	require.NoError(t, s.NotifySubmission(context.Background(), sampleReport(), alice, bob))
	require.Len(t, sender.messages, 1)
	m := sender.messages[0]
	assert.Equal(t, []string{"bob@example.com"}, m.GetHeader("To"))
	assert.Contains(t, m.GetHeader("Subject")[0], "Alice")
	assert.Contains(t, m.GetHeader("From")[0], "noreply@example.com")
}

func TestNotifyApproval_AttachesPDFAndCopiesFinance(t *testing.T) {
	s, sender := newTestEmailService(true)
	require.NoError(t, s.NotifyApproval(context.Background(), sampleReport(), alice, "finance@example.com", []byte("%PDF-1.3 test")))
	require.Len(t, sender.messages, 1)
	m := sender.messages[0]
	assert.Equal(t, []string{"alice@example.com", "finance@example.com"}, m.GetHeader("To"))
	raw := render(t, m)
	assert.Contains(t, raw, "expense-report-42.pdf")
	assert.Contains(t, raw, "application/pdf")

	// 没有财务邮箱和 PDF 时只发员工
	require.NoError(t, s.NotifyApproval(context.Background(), sampleReport(), alice, "", nil))
	m = sender.messages[1]
	assert.Equal(t, []string{"alice@example.com"}, m.GetHeader("To"))
	assert.NotContains(t, render(t, m), "expense-report-42.pdf")
}

func TestNotifyRejection(t *testing.T) {
	s, sender := newTestEmailService(true)
	require.NoError(t, s.NotifyRejection(context.Background(), sampleReport(), alice, bob))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"alice@example.com"}, sender.messages[0].GetHeader("To"))
}

func TestSendEmail_Errors(t *testing.T) {
	disabled, sender := newTestEmailService(false)
	assert.Error(t, disabled.NotifySubmission(context.Background(), sampleReport(), alice, bob))
	assert.Empty(t, sender.messages)

	s, sender := newTestEmailService(true)
	noEmail := &models.User{Username: "ghost"}
	assert.Error(t, s.NotifyRejection(context.Background(), sampleReport(), noEmail, bob))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendTestEmail(ctx, "x@example.com"), context.Canceled)

	sender.err = errors.New("connection refused")
	err := s.SendTestEmail(context.Background(), "x@example.com")
	assert.ErrorContains(t, err, "connection refused")
}
