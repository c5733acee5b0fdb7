package config

import (
	"strings"
	"sync"
)

// SettingsProvider 报销业务配置提供者，由工作流和消费记录逻辑按次读取
type SettingsProvider interface {
	VATRate() float64
	FinanceEmail() string
	DefaultCurrency() string
}

// Settings 进程内的报销业务配置，支持运行期更新
type Settings struct {
	mu  sync.RWMutex
	cur ExpenseConfig
}

// NewSettings 使用初始配置创建 Settings
func NewSettings(initial ExpenseConfig) *Settings {
	s := &Settings{}
	s.Update(initial)
	return s
}

// VATRate 当前增值税税率，如 0.15
func (s *Settings) VATRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.VATRate
}

// FinanceEmail 审批通过后抄送的财务邮箱，为空表示不抄送
func (s *Settings) FinanceEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.FinanceEmail
}

// DefaultCurrency 未指定币种时使用的币种代码
func (s *Settings) DefaultCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.DefaultCurrency
}

// Snapshot 返回当前配置的副本
func (s *Settings) Snapshot() ExpenseConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update 替换当前配置
func (s *Settings) Update(next ExpenseConfig) {
	next.FinanceEmail = strings.TrimSpace(next.FinanceEmail)
	next.DefaultCurrency = strings.ToUpper(strings.TrimSpace(next.DefaultCurrency))
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}
