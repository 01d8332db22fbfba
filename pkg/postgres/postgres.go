// Package postgres provides a latch.Source implementation for PostgreSQL
// using LISTEN/NOTIFY with a backing table.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source watches a PostgreSQL table row that holds a status document using
// LISTEN/NOTIFY. Requires a trigger to be set up on the table that sends
// notifications.
//
// Example trigger setup:
//
//	CREATE OR REPLACE FUNCTION notify_status_change() RETURNS trigger AS $$
//	BEGIN
//	    PERFORM pg_notify('status_changed', NEW.key);
//	    RETURN NEW;
//	END;
//	$$ LANGUAGE plpgsql;
//
//	CREATE TRIGGER status_change_trigger
//	    AFTER INSERT OR UPDATE ON status
//	    FOR EACH ROW EXECUTE FUNCTION notify_status_change();
type Source struct {
	pool    *pgxpool.Pool
	channel string
	key     string
	table   string
}

// Option configures a Source.
type Option func(*Source)

// WithTable sets the table name to query for values.
// Defaults to "status".
func WithTable(table string) Option {
	return func(s *Source) {
		s.table = table
	}
}

// New creates a new Source for the given notification channel and key.
// The channel should match the channel used in pg_notify.
// The key identifies which row to fetch from the status table.
func New(pool *pgxpool.Pool, channel, key string, opts ...Option) *Source {
	s := &Source{
		pool:    pool,
		channel: channel,
		key:     key,
		table:   "status",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching for PostgreSQL notifications and returns a channel
// that emits the row's value whenever it changes. The current value is
// emitted immediately to support the initial mirror.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	// Start listening
	_, err = conn.Exec(ctx, fmt.Sprintf("LISTEN %s", s.channel))
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", s.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		// Emit initial value
		value, err := s.fetchValue(ctx)
		if err == nil && value != nil {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}

		// Wait for notifications
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// Check if notification is for our key
			if notification.Payload != s.key {
				continue
			}

			// Fetch updated value
			value, err := s.fetchValue(ctx)
			if err != nil {
				continue
			}
			if value == nil {
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// fetchValue retrieves the current value from the status table.
func (s *Source) fetchValue(ctx context.Context) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table)
	err := s.pool.QueryRow(ctx, query, s.key).Scan(&value)
	if err != nil {
		return nil, err
	}
	return value, nil
}
