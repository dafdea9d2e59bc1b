package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arakoodev/cliscale/pkg/client"
	"github.com/arakoodev/cliscale/pkg/signer"
)

// JWKSClient caches the Controller's published key set so every token
// verification doesn't cost a round trip. A stale cached document is
// served past its TTL if refresh fails — an unreachable Controller must
// not stop in-flight attaches from verifying tokens signed before the
// outage.
type JWKSClient struct {
	controller *client.Client
	ttl        time.Duration

	mu        sync.RWMutex
	doc       *signer.JWKSDocument
	fetchedAt time.Time
}

// NewJWKSClient builds a JWKSClient around an existing Controller client.
func NewJWKSClient(controller *client.Client, ttl time.Duration) *JWKSClient {
	return &JWKSClient{controller: controller, ttl: ttl}
}

// Get returns the cached document if still fresh, otherwise fetches a new
// one. If the fetch fails and a previous document exists, the stale
// document is returned instead of an error.
func (c *JWKSClient) Get(ctx context.Context) (*signer.JWKSDocument, error) {
	c.mu.RLock()
	doc, fetchedAt := c.doc, c.fetchedAt
	c.mu.RUnlock()

	if doc != nil && time.Since(fetchedAt) < c.ttl {
		return doc, nil
	}

	fresh, err := c.controller.JWKS(ctx)
	if err != nil {
		if doc != nil {
			return doc, nil
		}
		return nil, fmt.Errorf("gateway: fetch jwks: %w", err)
	}

	c.mu.Lock()
	c.doc = fresh
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return fresh, nil
}
