package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend for tests and single-binary dev runs.
type MemoryBackend struct {
	mu       sync.Mutex
	jobs     map[string][]byte
	progress map[string]int
	wait     map[string][]string
	delayed  map[string]map[string]time.Time
	active   map[string]map[string]time.Time
	retained map[string][]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		jobs:     map[string][]byte{},
		progress: map[string]int{},
		wait:     map[string][]string{},
		delayed:  map[string]map[string]time.Time{},
		active:   map[string]map[string]time.Time{},
		retained: map[string][]string{},
	}
}

func memKey(queue, id string) string { return queue + "/" + id }

func (m *MemoryBackend) Save(_ context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[memKey(job.Queue, job.ID)] = payload
	m.progress[memKey(job.Queue, job.ID)] = job.Progress
	return nil
}

func (m *MemoryBackend) Load(_ context.Context, queue, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.jobs[memKey(queue, id)]
	if !ok {
		return nil, ErrJobNotFound
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	job.Progress = m.progress[memKey(queue, id)]
	return &job, nil
}

func (m *MemoryBackend) SetProgress(_ context.Context, queue, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[memKey(queue, id)] = progress
	return nil
}

func (m *MemoryBackend) Push(_ context.Context, queue, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wait[queue] = append(m.wait[queue], id)
	return nil
}

func (m *MemoryBackend) Schedule(_ context.Context, queue, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delayed[queue] == nil {
		m.delayed[queue] = map[string]time.Time{}
	}
	m.delayed[queue][id] = at
	return nil
}

func (m *MemoryBackend) PromoteDue(_ context.Context, queue string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, at := range m.delayed[queue] {
		if !at.After(now) {
			delete(m.delayed[queue], id)
			m.wait[queue] = append(m.wait[queue], id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Claim(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if id, ok := m.pop(queue); ok {
			return id, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MemoryBackend) pop(queue string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.wait[queue]) == 0 {
		return "", false
	}
	id := m.wait[queue][0]
	m.wait[queue] = m.wait[queue][1:]
	if m.active[queue] == nil {
		m.active[queue] = map[string]time.Time{}
	}
	m.active[queue][id] = time.Time{}
	return id, true
}

func (m *MemoryBackend) Lease(_ context.Context, queue, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[queue][id]; ok {
		m.active[queue][id] = until
	}
	return nil
}

func (m *MemoryBackend) RequeueStalled(_ context.Context, queue string, now time.Time, lease time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stalled []string
	for id, until := range m.active[queue] {
		switch {
		case until.IsZero():
			m.active[queue][id] = now.Add(lease)
		case !until.After(now):
			delete(m.active[queue], id)
			m.wait[queue] = append(m.wait[queue], id)
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

func (m *MemoryBackend) Ack(_ context.Context, queue, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active[queue], id)
	return nil
}

func (m *MemoryBackend) Retain(_ context.Context, queue string, status Status, id string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := queue + "/" + string(status)
	list := append([]string{id}, m.retained[key]...)
	if keep >= 0 && len(list) > keep {
		for _, old := range list[keep:] {
			delete(m.jobs, memKey(queue, old))
			delete(m.progress, memKey(queue, old))
		}
		list = list[:keep]
	}
	m.retained[key] = list
	return nil
}

// Delayed returns the scheduled time of id, if any.
func (m *MemoryBackend) Delayed(queue, id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.delayed[queue][id]
	return at, ok
}

// Active returns the ids currently claimed on queue.
func (m *MemoryBackend) Active(queue string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active[queue]))
	for id := range m.active[queue] {
		ids = append(ids, id)
	}
	return ids
}

// Waiting returns the ids currently claimable on queue.
func (m *MemoryBackend) Waiting(queue string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.wait[queue]...)
}
