// Package report writes segmentation results and digests as JSON, Markdown
// or styled terminal output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"chatdigest/internal/models"
	"chatdigest/internal/summary"
	"chatdigest/internal/textutil"

	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxKeywords = 5

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WriteMarkdown renders a digest and the conversations it was built from.
// digest may be nil, in which case only the conversation listing is written.
func WriteMarkdown(w io.Writer, digest *summary.Digest, result *models.SegmentationResult) error {
	var b strings.Builder
	caser := cases.Title(language.English)

	b.WriteString("# Activity digest\n\n")
	if digest != nil {
		if digest.User != "" {
			fmt.Fprintf(&b, "**User:** %s  \n", digest.User)
		}
		if !digest.Window.Since.IsZero() || !digest.Window.Until.IsZero() {
			fmt.Fprintf(&b, "**Period:** %s to %s  \n", dateOrOpen(digest.Window.Since), dateOrOpen(digest.Window.Until))
		}
		fmt.Fprintf(&b, "\n%s\n\n", digest.Headline)
	}

	stats := result.Stats
	b.WriteString("## Overview\n\n")
	b.WriteString("| Messages | Conversations | Threads | Time-gap splits | Semantic splits |\n")
	b.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		stats.TotalMessages, stats.TotalConversations, stats.ThreadsExtracted, stats.TimeGapSplits, stats.SemanticSplits)

	summaries := map[string]summary.ConversationSummary{}
	if digest != nil {
		for _, cs := range digest.Conversations {
			summaries[cs.ConversationID] = cs
		}
	}

	currentChannel := ""
	for _, c := range result.Conversations {
		if c.ChannelID != currentChannel {
			currentChannel = c.ChannelID
			fmt.Fprintf(&b, "## %s\n\n", caser.String(channelLabel(c)))
		}

		kind := "Conversation"
		if c.IsThread {
			kind = "Thread"
		}
		fmt.Fprintf(&b, "### %s %s\n\n", kind, c.StartTime)
		fmt.Fprintf(&b, "%d messages, participants: %s\n\n", c.MessageCount, strings.Join(c.Participants, ", "))

		cs, ok := summaries[c.ID]
		if !ok {
			if keywords := textutil.Keywords(messageTexts(c), maxKeywords); len(keywords) > 0 {
				fmt.Fprintf(&b, "keywords: %s\n\n", strings.Join(keywords, ", "))
			}
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", cs.Summary)
		for _, item := range cs.ActionItems {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
		if len(cs.ActionItems) > 0 {
			b.WriteString("\n")
		}
	}

	if len(result.Failures) > 0 {
		b.WriteString("## Skipped channels\n\n")
		for _, f := range result.Failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.ChannelID, f.Error)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	return nil
}

func messageTexts(c models.Conversation) []string {
	texts := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		texts[i] = m.Text
	}
	return texts
}

func channelLabel(c models.Conversation) string {
	if c.ChannelName != "" {
		return c.ChannelName
	}
	return c.ChannelID
}
