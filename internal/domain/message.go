package domain

// HistoryLimit caps each room's history buffer. Insertion is append-only with
// FIFO eviction once the cap is exceeded.
const HistoryLimit = 200

// Message is a single chat entry. Room is empty for direct messages, which are
// never retained in any history buffer.
type Message struct {
	Room      string `json:"room,omitempty"`
	Sender    string `json:"username"`
	Recipient string `json:"to,omitempty"`
	Body      string `json:"text"`
	Timestamp int64  `json:"ts"`
}
