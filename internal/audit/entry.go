package audit

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line in the hash-chained JSONL audit log. Only concrete
// field types are used so json.Marshal output, and therefore the chain
// hash, is deterministic.
type Entry struct {
	Timestamp   string `json:"ts"`
	RequestID   string `json:"request_id"`
	Instruction string `json:"instruction"`
	Operation   string `json:"operation,omitempty"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	PrevHash    string `json:"prev_hash"`
}
