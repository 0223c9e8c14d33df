package events

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// LoggedEvent is one row of event_log.
type LoggedEvent struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventLog appends events to the event_log table, where downstream sync jobs tail them by seq.
type EventLog struct {
	db     *sql.DB
	siteID string
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID}
}

func (r *EventLog) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, "marshal event data")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, e.Type, e.Key, string(data), e.At.UnixMilli())
	return errors.Wrap(err, "append event_log")
}

// Since returns up to limit events with seq greater than after.
func (r *EventLog) Since(ctx context.Context, after int64, limit int) ([]LoggedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query event_log")
	}
	defer rows.Close()
	var out []LoggedEvent
	for rows.Next() {
		var e LoggedEvent
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event_log")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate event_log")
}
