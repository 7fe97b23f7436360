package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps everything in process memory. Mostly for testing and local
// runs without postgres.
type Memory struct {
	mu          sync.RWMutex
	services    []Service
	attempts    []Attempt
	nextSvc     int64
	nextAttempt int64
}

func NewMemory() *Memory {
	return &Memory{nextSvc: 1, nextAttempt: 1}
}

func (m *Memory) CreateService(_ context.Context, name, walletAddress, endpointURL, price string) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc := Service{
		ID:            m.nextSvc,
		Name:          name,
		WalletAddress: walletAddress,
		EndpointURL:   endpointURL,
		Price:         price,
	}
	m.nextSvc++
	m.services = append(m.services, svc)
	return svc, nil
}

func (m *Memory) GetService(_ context.Context, id int64) (Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, svc := range m.services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return Service{}, ErrNotFound
}

func (m *Memory) ListServices(_ context.Context) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Service, len(m.services))
	copy(out, m.services)
	return out, nil
}

func (m *Memory) AppendAttempt(_ context.Context, serviceID int64, txHash, status string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, svc := range m.services {
		if svc.ID == serviceID {
			found = true
			break
		}
	}
	if !found {
		return Attempt{}, ErrNotFound
	}
	att := Attempt{
		ID:        m.nextAttempt,
		ServiceID: serviceID,
		TxHash:    txHash,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	m.nextAttempt++
	m.attempts = append(m.attempts, att)
	return att, nil
}

func (m *Memory) RecentAttempts(_ context.Context, limit int) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make(map[int64]string, len(m.services))
	for _, svc := range m.services {
		names[svc.ID] = svc.Name
	}
	// Appends are id-ordered, so newest rows sit at the tail.
	out := make([]Attempt, 0, limit)
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		att := m.attempts[i]
		att.ServiceName = names[att.ServiceID]
		out = append(out, att)
	}
	return out, nil
}

func (m *Memory) HasSuccess(_ context.Context, serviceID int64, txHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, att := range m.attempts {
		if att.ServiceID == serviceID && att.TxHash == txHash && att.Status == StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}
