package statemachine

import (
	"encoding/json"
	"sync"
)

// History 派发历史记录，通过 WithObserver(h.Observe) 挂到实例上
type History struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewHistory 创建历史记录，limit<=0时不限制条数
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Observe 追加一条记录，超出上限时丢弃最旧的
func (h *History) Observe(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)
	if h.limit > 0 && len(h.records) > h.limit {
		h.records = append(h.records[:0:0], h.records[len(h.records)-h.limit:]...)
	}
}

// Records 返回全部记录的副本
func (h *History) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Record{}, h.records...)
}

// Transitions 只返回匹配到转换的记录
func (h *History) Transitions() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, 0, len(h.records))
	for _, r := range h.records {
		if r.Matched {
			out = append(out, r)
		}
	}
	return out
}

// Len 记录条数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Clear 清空历史记录
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

// MarshalJSON 序列化为记录数组
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Records())
}
