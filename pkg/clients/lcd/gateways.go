package lcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownChain = errors.New("no gateway configured for chain")

// ChainGateways looks up channel metadata by chain id through the configured gateways.
type ChainGateways struct {
	resolver *Resolver
	urls     map[string]string
}

func NewChainGateways(resolver *Resolver, urls map[string]string) *ChainGateways {
	return &ChainGateways{resolver: resolver, urls: urls}
}

func (g *ChainGateways) OpenChannels(ctx context.Context, chainID string) ([]Channel, error) {
	gateway, ok := g.urls[strings.TrimSpace(chainID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}
	channels, err := g.resolver.OpenChannels(ctx, gateway)
	if err != nil {
		return nil, fmt.Errorf("list channels of %s: %w", chainID, err)
	}
	if channels == nil {
		channels = []Channel{}
	}
	return channels, nil
}
