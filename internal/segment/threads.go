package segment

import "chatdigest/internal/models"

// Thread is a reply chain pulled out of a channel stream
type Thread struct {
	ThreadTS string
	Messages []models.Message
}

// ExtractThreads moves every thread with at least one reply out of messages.
// The root, when present, goes with its replies. A root without replies is
// left in remaining. Replies whose root is missing from the input still form
// a thread. messages must be sorted by ts; both outputs keep that order and
// threads are ordered by their first message.
func ExtractThreads(messages []models.Message) (threads []Thread, remaining []models.Message) {
	hasReplies := make(map[string]bool)
	for _, m := range messages {
		if m.IsThreadReply() {
			hasReplies[m.ThreadTS] = true
		}
	}

	index := make(map[string]int)
	for _, m := range messages {
		key, ok := threadKey(m, hasReplies)
		if !ok {
			remaining = append(remaining, m)
			continue
		}

		i, seen := index[key]
		if !seen {
			i = len(threads)
			index[key] = i
			threads = append(threads, Thread{ThreadTS: key})
		}
		threads[i].Messages = append(threads[i].Messages, m)
	}

	return threads, remaining
}

// threadKey returns the thread m belongs to, if that thread has replies
func threadKey(m models.Message, hasReplies map[string]bool) (string, bool) {
	if m.IsThreadReply() {
		return m.ThreadTS, true
	}
	// a root may or may not carry its own ts as thread_ts
	if hasReplies[m.TS] {
		return m.TS, true
	}
	return "", false
}
