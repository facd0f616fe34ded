package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/dbpool"
)

const (
	// SynonymChannel is the NOTIFY channel fired by the curie_synonyms trigger.
	SynonymChannel    = "curie_synonyms_changed"
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// Invalidator drops cached data derived from the synonym table.
type Invalidator interface {
	Invalidate()
}

// SynonymListener subscribes to LISTEN/NOTIFY on SynonymChannel and
// invalidates the synonym cache whenever the table changes.
type SynonymListener struct {
	log    *logrus.Logger
	pool   *dbpool.Pool
	target Invalidator
}

// NewSynonymListener creates a listener wired to the given pool and cache.
func NewSynonymListener(log *logrus.Logger, pool *dbpool.Pool, target Invalidator) *SynonymListener {
	return &SynonymListener{log: log, pool: pool, target: target}
}

// Start launches the LISTEN loop in a background goroutine after verifying
// the database is reachable. Later connection failures are retried with backoff.
func (l *SynonymListener) Start(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("synonym listener: database not reachable: %w", err)
	}

	go l.listen(ctx)

	return nil
}

func (l *SynonymListener) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		l.log.WithError(err).WithField("retry_in", backoff).
			Warn("synonym listener connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (l *SynonymListener) subscribe(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{SynonymChannel}.Sanitize()); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	l.log.WithField("channel", SynonymChannel).Info("synonym listener listening")

	for {
		// Periodic deadline so ctx cancellation is observed.
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		l.handle(n)
	}
}

func (l *SynonymListener) handle(n *pgconn.Notification) {
	l.log.WithFields(logrus.Fields{
		"channel": n.Channel,
		"pid":     n.PID,
		"payload": n.Payload,
	}).Debug("synonym table changed")

	l.target.Invalidate()
}

// nextBackoff doubles the current backoff with ±25% jitter, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
