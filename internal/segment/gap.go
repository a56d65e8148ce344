package segment

import (
	"time"

	"chatdigest/internal/models"
)

// SplitByGap cuts a chronologically sorted message run wherever two
// consecutive messages are more than gap apart. A gap of exactly the
// threshold does not split.
func SplitByGap(messages []models.Message, gap time.Duration) ([][]models.Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	limit := gap.Microseconds()
	var candidates [][]models.Message
	start := 0

	prev, err := ParseTS(messages[0].TS)
	if err != nil {
		return nil, &UnorderedInputError{TS: messages[0].TS}
	}
	for i := 1; i < len(messages); i++ {
		cur, err := ParseTS(messages[i].TS)
		if err != nil {
			return nil, &UnorderedInputError{TS: messages[i].TS, Position: i}
		}
		if cur-prev > limit {
			candidates = append(candidates, messages[start:i])
			start = i
		}
		prev = cur
	}
	candidates = append(candidates, messages[start:])

	return candidates, nil
}
