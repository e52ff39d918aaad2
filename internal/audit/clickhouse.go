package audit

import (
	"context"
	"fmt"
	"regexp"
)

// Execer is satisfied by *client.ClickHouseClient.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ClickHouseSink appends events to a MergeTree table for delivery analytics.
type ClickHouseSink struct {
	conn  Execer
	table string
}

func NewClickHouseSink(conn Execer, table string) (*ClickHouseSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

// EnsureTable creates the events table when it does not exist.
func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	channel LowCardinality(String),
	provider LowCardinality(String),
	recipient String,
	user_id UInt64,
	success UInt8,
	message_id String,
	error String,
	attempts UInt16,
	occurred_at DateTime64(3)
) ENGINE = MergeTree ORDER BY (channel, occurred_at)`, s.table)
	if err := s.conn.Exec(ctx, query); err != nil {
		return wrap("clickhouse", err)
	}
	return nil
}

func (s *ClickHouseSink) Record(ctx context.Context, e Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, channel, provider, recipient, user_id, success, message_id, error, attempts, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var success uint8
	if e.Success {
		success = 1
	}
	err := s.conn.Exec(ctx, query,
		e.ID, e.Channel, e.Provider, e.Recipient, uint64(e.UserID),
		success, e.MessageID, e.Error, uint16(e.Attempts), e.OccurredAt)
	if err != nil {
		return wrap("clickhouse", err)
	}
	return nil
}
