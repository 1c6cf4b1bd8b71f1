package store

import (
	"context"
	"sync"
	"time"

	"prreview/internal/codec"
	"prreview/internal/model"
)

type memoryEntry struct {
	status    []byte
	result    []byte
	updatedAt time.Time
}

// Memory is an in-process JobStore. Values go through the codec exactly
// as they do for the networked backends.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *Memory) SetStatus(_ context.Context, id string, status model.Status) error {
	data, err := codec.EncodeStatus(status)
	if err != nil {
		return wrap("set status", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		e = &memoryEntry{}
		m.entries[id] = e
	}
	if e.status != nil {
		current, err := codec.DecodeStatus(e.status)
		if err != nil {
			return wrap("set status", err)
		}
		if current.State.Terminal() {
			return ErrTerminal
		}
	}
	e.status = data
	e.updatedAt = m.now()
	return nil
}

func (m *Memory) GetStatus(_ context.Context, id string) (model.Status, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	var data []byte
	if ok {
		data = e.status
	}
	m.mu.RUnlock()

	if data == nil {
		return model.Status{}, ErrNotFound
	}
	s, err := codec.DecodeStatus(data)
	return s, wrap("get status", err)
}

func (m *Memory) SetResult(_ context.Context, id string, result model.Result) error {
	data, err := codec.EncodeResult(result)
	if err != nil {
		return wrap("set result", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		e = &memoryEntry{}
		m.entries[id] = e
	}
	e.result = data
	e.updatedAt = m.now()
	return nil
}

func (m *Memory) GetResult(_ context.Context, id string) (model.Result, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	var data []byte
	if ok {
		data = e.result
	}
	m.mu.RUnlock()

	if data == nil {
		return model.Result{}, ErrNotFound
	}
	r, err := codec.DecodeResult(data)
	return r, wrap("get result", err)
}

// DeleteExpired drops jobs not written since cutoff.
func (m *Memory) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, e := range m.entries {
		if e.updatedAt.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
