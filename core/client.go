package core

// core/client.go — the composition root: a client owns the schema, a store
// (local or network) and, in network mode, the connection.

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Client ties a schema to a store and exposes the entity façade.
type Client struct {
	schema *Schema
	store  Store
	conn   *Connection
	db     *Database
}

// NewLocalClient builds a client over an in-memory store.
func NewLocalClient(schema *Schema) *Client {
	store := NewTripleStore()
	return &Client{
		schema: schema,
		store:  store,
		db:     NewDatabase(schema, store),
	}
}

// NewNetworkClient connects to a sync server and builds a client over the
// network store.
func NewNetworkClient(ctx context.Context, schema *Schema, cfg ConnConfig) (*Client, error) {
	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	store, err := NewNetworkStore(conn, cfg.Telemetry)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logrus.WithField("url", cfg.URL).Debug("network client connected")
	return &Client{
		schema: schema,
		store:  store,
		conn:   conn,
		db:     NewDatabase(schema, store),
	}, nil
}

// DB returns the entity façade.
func (c *Client) DB() *Database { return c.db }

// Store returns the backing store.
func (c *Client) Store() Store { return c.store }

// Connection returns the transport in network mode, nil otherwise.
func (c *Client) Connection() *Connection { return c.conn }

// Close releases the transport if the client owns one.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
