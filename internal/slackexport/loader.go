// Package slackexport reads a standard Slack workspace export: channels.json
// plus one directory per channel holding a JSON file of messages per day.
package slackexport

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"chatdigest/internal/models"
	"chatdigest/internal/segment"
)

// Filter narrows what Load returns. Zero values mean unbounded.
type Filter struct {
	Since time.Time // inclusive
	Until time.Time // exclusive
	User  string    // keep only channels this user posted in during the window
}

type channelRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type messageRecord struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
}

// membership events carry no conversation content
var skippedSubtypes = map[string]bool{
	"channel_join":  true,
	"channel_leave": true,
	"group_join":    true,
	"group_leave":   true,
}

// channel index files in an export; private channels live in groups.json
var indexFiles = []string{"channels.json", "groups.json"}

// Load reads the export rooted at dir. Channels are returned sorted by id and
// each channel's messages are sorted by ts. Messages whose ts cannot be
// parsed are kept at the end of their channel so the segmenter can report them.
func Load(dir string, filter Filter) ([]models.Channel, error) {
	records, err := readChannelIndex(dir)
	if err != nil {
		return nil, err
	}

	channels := make([]models.Channel, 0, len(records))
	for _, rec := range records {
		messages, err := readChannel(filepath.Join(dir, rec.Name), rec.ID, filter)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", rec.Name, err)
		}
		if len(messages) == 0 {
			continue
		}
		if filter.User != "" && !postedIn(messages, filter.User) {
			continue
		}
		channels = append(channels, models.Channel{ID: rec.ID, Name: rec.Name, Messages: messages})
	}

	slices.SortFunc(channels, func(a, b models.Channel) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return channels, nil
}

// Flatten returns all messages of channels and a channel id to name map
func Flatten(channels []models.Channel) ([]models.Message, map[string]string) {
	var messages []models.Message
	names := make(map[string]string, len(channels))
	for _, ch := range channels {
		messages = append(messages, ch.Messages...)
		names[ch.ID] = ch.Name
	}
	return messages, names
}

func readChannelIndex(dir string) ([]channelRecord, error) {
	var records []channelRecord
	found := false
	for _, name := range indexFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		found = true

		var batch []channelRecord
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		records = append(records, batch...)
	}
	if !found {
		return nil, fmt.Errorf("%s is not a Slack export: no channels.json", dir)
	}
	return records, nil
}

func readChannel(dir, channelID string, filter Filter) ([]models.Message, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)

	type stamped struct {
		msg models.Message
		at  int64
		ok  bool
	}
	var items []stamped

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}

		var records []messageRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}

		for _, rec := range records {
			if rec.Type != "" && rec.Type != "message" {
				continue
			}
			if skippedSubtypes[rec.Subtype] {
				continue
			}

			at, err := segment.ParseTS(rec.TS)
			parsed := err == nil
			if parsed && !inWindow(at, filter) {
				continue
			}

			user := rec.User
			if user == "" {
				user = rec.BotID
			}
			items = append(items, stamped{
				msg: models.Message{
					TS:       rec.TS,
					ThreadTS: rec.ThreadTS,
					User:     user,
					Text:     strings.TrimSpace(rec.Text),
					Channel:  channelID,
				},
				at: at,
				ok: parsed,
			})
		}
	}

	slices.SortStableFunc(items, func(a, b stamped) int {
		if a.ok != b.ok {
			if a.ok {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.at, b.at)
	})

	messages := make([]models.Message, len(items))
	for i, it := range items {
		messages[i] = it.msg
	}
	return messages, nil
}

func inWindow(micros int64, filter Filter) bool {
	if !filter.Since.IsZero() && micros < filter.Since.UnixMicro() {
		return false
	}
	if !filter.Until.IsZero() && micros >= filter.Until.UnixMicro() {
		return false
	}
	return true
}

func postedIn(messages []models.Message, user string) bool {
	for _, m := range messages {
		if m.User == user {
			return true
		}
	}
	return false
}
