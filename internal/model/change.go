package model

import "time"

// ChangeOp identifies the kind of mutation captured in the change log
type ChangeOp string

const (
	ChangeOpCreate  ChangeOp = "create"
	ChangeOpUpdate  ChangeOp = "update"
	ChangeOpDelete  ChangeOp = "delete"
	ChangeOpRestore ChangeOp = "restore"
)

// Change is one entry of the append-only change log
type Change struct {
	Seq      uint64    `json:"seq"`
	Table    string    `json:"table"`
	RecordID string    `json:"record_id"`
	Op       ChangeOp  `json:"op"`
	Before   *Record   `json:"before,omitempty"`
	After    *Record   `json:"after,omitempty"`
	TxID     string    `json:"tx_id,omitempty"`
	At       time.Time `json:"at"`
}

// ChangeQuery selects entries from the change log. Zero values match everything.
type ChangeQuery struct {
	Table    string
	RecordID string
	TxID     string
	SinceSeq uint64
	Limit    int
}

// Matches reports whether the change satisfies the query filters
func (q ChangeQuery) Matches(c Change) bool {
	if q.Table != "" && c.Table != q.Table {
		return false
	}
	if q.RecordID != "" && c.RecordID != q.RecordID {
		return false
	}
	if q.TxID != "" && c.TxID != q.TxID {
		return false
	}
	return c.Seq > q.SinceSeq
}
