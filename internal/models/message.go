package models

// Message is a single chat message as delivered by a message source.
// TS is the platform timestamp-id ("1700000000.000100"), unique and
// monotonic within a channel.
type Message struct {
	TS       string `db:"ts" json:"ts"`
	ThreadTS string `db:"thread_ts" json:"thread_ts,omitempty"`
	User     string `db:"user_id" json:"user,omitempty"`
	Text     string `db:"text" json:"text"`
	Channel  string `db:"channel_id" json:"channel"`
}

// IsThreadReply reports whether the message replies to another message's thread.
func (m Message) IsThreadReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.TS
}

// Channel is one channel's ordered message history for a time window.
type Channel struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}
