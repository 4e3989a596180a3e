package transport

import (
	"context"
	"sync"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
)

// ScenarioBackend adapts the scenario endpoint to the chat engine. The backend
// keeps no scenario history, so History is always empty and Clear always
// succeeds.
type ScenarioBackend struct {
	Client *Client
}

// Send implements chat.Backend. The persona is fixed server-side.
func (b ScenarioBackend) Send(ctx context.Context, text, _ string) (*domain.ChatReply, error) {
	return b.Client.ScenarioChat(ctx, text)
}

// History implements chat.Backend.
func (b ScenarioBackend) History(context.Context) (*domain.HistoryReply, error) {
	return &domain.HistoryReply{Success: true}, nil
}

// Clear implements chat.Backend.
func (b ScenarioBackend) Clear(context.Context) (*domain.ClearReply, error) {
	return &domain.ClearReply{Success: true}, nil
}

// ChatbotBackend adapts the chatbot endpoints to the chat engine.
type ChatbotBackend struct {
	Client *Client
}

// Send implements chat.Backend.
func (b ChatbotBackend) Send(ctx context.Context, text, persona string) (*domain.ChatReply, error) {
	return b.Client.ChatbotChat(ctx, text, persona)
}

// History implements chat.Backend.
func (b ChatbotBackend) History(ctx context.Context) (*domain.HistoryReply, error) {
	return b.Client.ChatbotHistory(ctx)
}

// Clear implements chat.Backend.
func (b ChatbotBackend) Clear(ctx context.Context) (*domain.ClearReply, error) {
	return b.Client.ChatbotClear(ctx)
}

// Pool hands out one forked Client per device so each device keeps its own
// backend session across tabs and reloads.
type Pool struct {
	base    *Client
	mu      sync.Mutex
	clients map[string]*pooledClient
}

type pooledClient struct {
	client   *Client
	lastUsed time.Time
}

// NewPool creates a pool forking from base.
func NewPool(base *Client) *Pool {
	return &Pool{base: base, clients: make(map[string]*pooledClient)}
}

// For returns the client for userID, creating it on first use.
func (p *Pool) For(userID string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[userID]
	if !ok {
		pc = &pooledClient{client: p.base.Fork()}
		p.clients[userID] = pc
	}
	pc.lastUsed = time.Now()
	return pc.client
}

// Prune drops clients unused for longer than idle and returns how many were
// removed.
func (p *Pool) Prune(idle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for id, pc := range p.clients {
		if pc.lastUsed.Before(cutoff) {
			delete(p.clients, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
