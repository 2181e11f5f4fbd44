package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MultiRPCClient fronts several gateway endpoints and rotates away from an
// endpoint after repeated transport failures. Fatal and unknown outcomes are
// returned as-is: a contract rejection or an ambiguous execute must never be
// replayed against another endpoint.
type MultiRPCClient struct {
	clients       []*RPCClient
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiRPCClient(endpoints []string, failThreshold int) (*MultiRPCClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*RPCClient, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewRPCClient(ep))
	}
	return &MultiRPCClient{
		clients:       clients,
		index:         0,
		failCount:     0,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiRPCClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiRPCClient) LatestHeight(ctx context.Context) (int64, error) {
	var out int64
	err := m.withFailover(func(c *RPCClient) error {
		var err error
		out, err = c.LatestHeight(ctx)
		return err
	})
	return out, err
}

func (m *MultiRPCClient) GetBalance(ctx context.Context, accountID string) (string, error) {
	var out string
	err := m.withFailover(func(c *RPCClient) error {
		var err error
		out, err = c.GetBalance(ctx, accountID)
		return err
	})
	return out, err
}

func (m *MultiRPCClient) FindTransaction(ctx context.Context, token string) (*Tx, error) {
	var out *Tx
	err := m.withFailover(func(c *RPCClient) error {
		var err error
		out, err = c.FindTransaction(ctx, token)
		return err
	})
	return out, err
}

func (m *MultiRPCClient) ExecuteContract(ctx context.Context, req ExecuteRequest) (*Receipt, error) {
	var out *Receipt
	err := m.withFailover(func(c *RPCClient) error {
		var err error
		out, err = c.ExecuteContract(ctx, req)
		return err
	})
	return out, err
}

// withFailover retries retryable failures against the current endpoint and
// only rotates once its failure count reaches the threshold, so a transient
// blip does not bounce traffic between endpoints.
func (m *MultiRPCClient) withFailover(call func(c *RPCClient) error) error {
	maxAttempts := len(m.clients) * m.failThreshold

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, idx := m.currentClient()
		err := call(client)
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		m.noteFailure(idx)
		if m.shouldRotate() {
			m.rotate()
		}
	}
	return lastErr
}

func (m *MultiRPCClient) currentClient() (*RPCClient, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiRPCClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiRPCClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiRPCClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiRPCClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}

var _ Client = (*MultiRPCClient)(nil)
var _ Client = (*RPCClient)(nil)
