package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/kvistad/parley/internal/session"
	"github.com/kvistad/parley/internal/wire"
)

// Client composes the client core for one role: the single shared
// transport session, the inbox subscription, the conversation store, and,
// for the agent role, the selector. Create one per login, stop it at
// logout.
type Client struct {
	identity Identity
	backend  Backend
	sess     *session.Session
	store    *Store
	selector *Selector // nil for the customer role
	composer *Composer
	agentID  uint // customer role: the implicit counterpart
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BrokerURL string   // websocket endpoint, e.g. "ws://host:8084/ws"
	Token     string   // bearer credential from login
	Identity  Identity // the authenticated local participant
	Backend   Backend  // REST collaborator client

	AgentID uint // customer role only: the well-known agent identity

	ReconnectInterval time.Duration               // defaults per session package
	OnStateChange     func(session.StateChange)   // optional connection indicator
	OnNotify          func(Notification)          // agent role: background toasts
	OnMessage         func(wire.Message)          // optional: live log appends
	Dialer            session.Dialer              // tests inject a mock transport
}

// NewAgentClient creates the multi-conversation client for the support
// agent role.
func NewAgentClient(opts ClientOpts) (*Client, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	c.selector = NewSelector(c.store, c.identity.ID, opts.OnNotify)
	c.composer = NewComposer(c.sess, c.identity.ID, func() (uint, bool) {
		active, ok := c.selector.Active()
		return active.ID, ok
	})
	return c, nil
}

// NewCustomerClient creates the single-conversation client for the
// customer role. The well-known agent identity is the one implicit
// counterpart, so the composer can never lack a recipient.
func NewCustomerClient(opts ClientOpts) (*Client, error) {
	if opts.AgentID == 0 {
		return nil, fmt.Errorf("chat: client: agent id is required for the customer role")
	}
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	c.agentID = opts.AgentID
	c.composer = NewComposer(c.sess, c.identity.ID, func() (uint, bool) {
		return c.agentID, true
	})
	return c, nil
}

func newClient(opts ClientOpts) (*Client, error) {
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("chat: client: broker url is required")
	}
	if opts.Identity.ID == 0 {
		return nil, fmt.Errorf("chat: client: identity is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("chat: client: backend is required")
	}

	sess, err := session.New(session.Opts{
		URL:               opts.BrokerURL,
		Token:             opts.Token,
		Dialer:            opts.Dialer,
		ReconnectInterval: opts.ReconnectInterval,
		OnStateChange:     opts.OnStateChange,
	})
	if err != nil {
		return nil, err
	}

	store := NewStore(opts.Backend)
	if opts.OnMessage != nil {
		store.OnAppend(opts.OnMessage)
	}

	return &Client{
		identity: opts.Identity,
		backend:  opts.Backend,
		sess:     sess,
		store:    store,
	}, nil
}

// Start attaches the inbox subscription and brings the channel up. For the
// customer role it also loads the one implicit conversation's history; the
// inbound read path is live before the fetch, so frames arriving meanwhile
// are not lost.
func (c *Client) Start(ctx context.Context) error {
	c.sess.Subscribe(ctx, wire.Inbox(c.identity.ID), c.handleInbound)
	c.sess.Connect()

	if c.selector == nil {
		if err := c.store.Load(ctx, c.agentID); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears down the transport session.
func (c *Client) Stop() {
	c.sess.Disconnect()
}

// handleInbound consumes one message delivered to the local inbox.
func (c *Client) handleInbound(m wire.Message) {
	if c.selector != nil {
		c.selector.HandleInbound(m)
		return
	}
	// Customer role: one implicit conversation; everything delivered to
	// this inbox belongs in it.
	c.store.Append(m)
}

// Identity returns the local participant.
func (c *Client) Identity() Identity { return c.identity }

// Session returns the shared transport session.
func (c *Client) Session() *session.Session { return c.sess }

// Store returns the visible conversation log.
func (c *Client) Store() *Store { return c.store }

// Selector returns the conversation selector, or nil for the customer
// role.
func (c *Client) Selector() *Selector { return c.selector }

// Composer returns the message composer.
func (c *Client) Composer() *Composer { return c.composer }

// Customers fetches the selectable counterpart directory (agent role).
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	return c.backend.Customers(ctx)
}
