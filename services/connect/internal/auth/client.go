package auth

import (
	"context"
	"sync"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// Client is one session's view of the auth provider. It remembers the
// signed-in principal and notifies subscribers whenever it changes.
type Client struct {
	backend Backend

	mu        sync.Mutex
	current   *models.Principal
	listeners map[int]func(*models.Principal)
	nextID    int
}

// NewClient creates a signed-out client backed by b.
func NewClient(b Backend) *Client {
	return &Client{
		backend:   b,
		listeners: make(map[int]func(*models.Principal)),
	}
}

// Backend returns the stateless provider behind the client.
func (c *Client) Backend() Backend {
	return c.backend
}

// SignIn authenticates and makes the principal current.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Principal, error) {
	p, err := c.backend.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.set(p)
	return p, nil
}

// SignUp registers a new principal and makes it current.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Principal, error) {
	p, err := c.backend.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.set(p)
	return p, nil
}

// SendVerification sends a verification email to the current principal.
func (c *Client) SendVerification(ctx context.Context) error {
	p := c.CurrentPrincipal()
	if p == nil {
		return ErrNoPrincipal
	}
	return c.backend.SendVerification(ctx, p)
}

// SignOut clears the current principal.
func (c *Client) SignOut(ctx context.Context) error {
	c.set(nil)
	return nil
}

// Restore makes p current without contacting the provider. It is used when
// the caller already proved the principal, for example by a bearer token.
func (c *Client) Restore(p *models.Principal) {
	c.set(p)
}

// CurrentPrincipal returns a copy of the signed-in principal, or nil.
func (c *Client) CurrentPrincipal() *models.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	p := *c.current
	return &p
}

// Subscribe registers fn for principal changes and returns its cancel func.
// fn runs synchronously on the goroutine that changed the principal.
func (c *Client) Subscribe(fn func(*models.Principal)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) set(p *models.Principal) {
	c.mu.Lock()
	if p != nil {
		cp := *p
		p = &cp
	}
	c.current = p
	fns := make([]func(*models.Principal), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		var arg *models.Principal
		if p != nil {
			cp := *p
			arg = &cp
		}
		fn(arg)
	}
}
