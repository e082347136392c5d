package lcd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DenomResolver turns an IBC denom hash into its base denom using the gateway
// at the given base address.
type DenomResolver interface {
	ResolveDenom(ctx context.Context, gateway, ibcHash string) (string, error)
}

// Resolver keeps one Client per gateway, created on first use.
type Resolver struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{
		timeout: timeout,
		clients: make(map[string]*Client),
	}
}

func (r *Resolver) ResolveDenom(ctx context.Context, gateway, ibcHash string) (string, error) {
	client, err := r.client(gateway)
	if err != nil {
		return "", err
	}
	trace, err := client.GetDenomTrace(ctx, ibcHash)
	if err != nil {
		return "", fmt.Errorf("resolve %s via %s: %w", ibcHash, client.BaseURL(), err)
	}
	return trace.BaseDenom, nil
}

func (r *Resolver) client(gateway string) (*Client, error) {
	key := strings.TrimRight(gateway, "/")
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := NewClient(key, r.timeout)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// OpenChannels lists the open channels known to the gateway.
func (r *Resolver) OpenChannels(ctx context.Context, gateway string) ([]Channel, error) {
	client, err := r.client(gateway)
	if err != nil {
		return nil, err
	}
	return client.GetIbcChannels(ctx)
}
