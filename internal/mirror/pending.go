package mirror

import (
	"context"
	"database/sql"
	"time"
)

// PendingOp is one journaled offline write, replayed in order on reconnect.
type PendingOp struct {
	ID         int64  `json:"id"`
	Op         string `json:"op" enum:"create,update,delete"`
	Collection string `json:"collection"`
	RecordID   string `json:"record_id,omitempty"`
	Payload    string `json:"payload_json,omitempty"`
	TS         string `json:"ts" format:"date-time"`
	LastError  string `json:"last_error,omitempty"`
}

// AppendPending journals an offline mutation.
func (m Mirror) AppendPending(ctx context.Context, op, collection, recordID string, payload []byte) error {
	ts := m.now().UTC().Format(time.RFC3339)
	_, err := m.DB.ExecContext(ctx, `INSERT INTO pending_ops(op,collection,record_id,payload_json,ts) VALUES (?,?,?,?,?)`,
		op, collection, nullable(recordID), nullable(string(payload)), ts)
	return err
}

// ListPending returns journaled operations oldest first.
func (m Mirror) ListPending(ctx context.Context) ([]PendingOp, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id,op,collection,record_id,payload_json,ts,last_error FROM pending_ops ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []PendingOp
	for rows.Next() {
		var p PendingOp
		var recordID, payload, lastErr sql.NullString
		if err := rows.Scan(&p.ID, &p.Op, &p.Collection, &recordID, &payload, &p.TS, &lastErr); err != nil {
			return nil, err
		}
		if recordID.Valid {
			p.RecordID = recordID.String
		}
		if payload.Valid {
			p.Payload = payload.String
		}
		if lastErr.Valid {
			p.LastError = lastErr.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// DeletePending removes a drained journal entry.
func (m Mirror) DeletePending(ctx context.Context, id int64) error {
	_, err := m.DB.ExecContext(ctx, `DELETE FROM pending_ops WHERE id=?`, id)
	return err
}

// MarkPendingError records the last replay failure on a journal entry.
func (m Mirror) MarkPendingError(ctx context.Context, id int64, msg string) error {
	_, err := m.DB.ExecContext(ctx, `UPDATE pending_ops SET last_error=? WHERE id=?`, msg, id)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
