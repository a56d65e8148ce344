package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chatdigest/internal/models"

	"github.com/charmbracelet/lipgloss"
)

const previewChars = 72

var (
	colorPrimary = lipgloss.Color("12")  // bright blue
	colorThread  = lipgloss.Color("13")  // bright magenta
	colorDim     = lipgloss.Color("240") // gray
	colorWarn    = lipgloss.Color("11")  // bright yellow

	styleChannel = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleThread = lipgloss.NewStyle().
			Foreground(colorThread)

	styleDim = lipgloss.NewStyle().
			Foreground(colorDim)

	styleWarn = lipgloss.NewStyle().
			Foreground(colorWarn).
			Bold(true)

	styleStats = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// RenderTerminal prints a compact listing of result. Styles are applied only
// when styled is set, so piped output stays plain.
func RenderTerminal(w io.Writer, result *models.SegmentationResult, styled bool) error {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	currentChannel := ""
	for _, c := range result.Conversations {
		if c.ChannelID != currentChannel {
			if currentChannel != "" {
				b.WriteString("\n")
			}
			currentChannel = c.ChannelID
			b.WriteString(render(styleChannel, "#"+channelLabel(c)) + "\n")
		}

		marker := "  •"
		if c.IsThread {
			marker = render(styleThread, "  ↳")
		}
		fmt.Fprintf(&b, "%s %s %s\n", marker,
			render(styleDim, fmt.Sprintf("%s (%d msgs, %s)", shortTime(c.StartTime), c.MessageCount, span(c))),
			preview(c))
	}

	for _, f := range result.Failures {
		fmt.Fprintf(&b, "%s %s: %s\n", render(styleWarn, "skipped"), f.ChannelID, f.Error)
	}

	s := result.Stats
	statsLine := fmt.Sprintf("%d messages → %d conversations · %d threads · %d gap splits · %d semantic splits",
		s.TotalMessages, s.TotalConversations, s.ThreadsExtracted, s.TimeGapSplits, s.SemanticSplits)
	if s.SemanticFallbacks > 0 {
		statsLine += fmt.Sprintf(" · %d fallbacks", s.SemanticFallbacks)
	}
	if styled {
		b.WriteString("\n" + styleStats.Render(statsLine) + "\n")
	} else {
		b.WriteString("\n" + statsLine + "\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func preview(c models.Conversation) string {
	for _, m := range c.Messages {
		text := strings.Join(strings.Fields(m.Text), " ")
		if text == "" {
			continue
		}
		r := []rune(text)
		if len(r) > previewChars {
			return string(r[:previewChars]) + "…"
		}
		return text
	}
	return ""
}

func shortTime(iso string) string {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return iso
	}
	return t.Format("2006-01-02 15:04")
}

func span(c models.Conversation) string {
	start, err1 := time.Parse(time.RFC3339Nano, c.StartTime)
	end, err2 := time.Parse(time.RFC3339Nano, c.EndTime)
	if err1 != nil || err2 != nil {
		return "?"
	}
	return end.Sub(start).Round(time.Minute).String()
}

func dateOrOpen(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format("2006-01-02")
}
