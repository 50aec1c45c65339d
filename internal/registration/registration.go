package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/transport"
)

// RegisterPath is the collector endpoint agents announce themselves on.
const RegisterPath = "/api/agent/register"

// Record is the registration request body.
type Record struct {
	Name        string `json:"name"`
	IPAddress   string `json:"ip_address"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// Identity is the static part of a Record.
type Identity struct {
	Name        string
	Location    string
	Description string
}

// Client announces the agent to the collector. It keeps no state between
// calls, so each Register is an independent attempt.
type Client struct {
	client    *transport.Client
	identity  Identity
	resolvers []Resolver
}

type Option func(*Client)

// WithResolvers replaces the address resolution chain.
func WithResolvers(resolvers ...Resolver) Option {
	return func(c *Client) {
		c.resolvers = resolvers
	}
}

func NewClient(client *transport.Client, identity Identity, opts ...Option) *Client {
	c := &Client{
		client:    client,
		identity:  identity,
		resolvers: DefaultResolvers(""),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register resolves the host address and posts a single registration. Any
// outcome other than HTTP 200 returns ErrRegistrationFailed.
func (c *Client) Register(ctx context.Context) error {
	errFactory := errors.New()

	record := Record{
		Name:        c.identity.Name,
		IPAddress:   ResolveAddress(ctx, c.resolvers...),
		Location:    c.identity.Location,
		Description: c.identity.Description,
	}

	body, err := json.Marshal(record)
	if err != nil {
		return errFactory.Wrap(errors.ErrRegistrationFailed, err)
	}

	resp, err := c.client.PostJSON(ctx, RegisterPath, body)
	if err != nil {
		return errFactory.Wrap(errors.ErrRegistrationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(errors.ErrRegistrationFailed, fmt.Sprintf("status %d", resp.StatusCode))
	}

	return nil
}
