package main

import (
	"fmt"
	"io"

	"chatdigest/internal/models"
	"chatdigest/internal/report"
	"chatdigest/internal/summary"

	"github.com/spf13/cobra"
)

func segmentCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Split an export window into conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(flags.format); err != nil {
				return err
			}
			e := newEnv()

			r, err := segmentExport(cmd.Context(), e, &flags)
			if err != nil {
				return err
			}
			defer func() { _ = r.backend.Close() }()

			w, closeOut, err := openOutput(flags.out)
			if err != nil {
				return err
			}
			if err := writeResult(w, flags.format, nil, r.result); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}
	flags.register(cmd, "json")
	return cmd
}

func validateFormat(format string) error {
	switch format {
	case "json", "md", "term":
		return nil
	default:
		return fmt.Errorf("unknown format %q: use json, md or term", format)
	}
}

// writeResult renders a run. digest may be nil.
func writeResult(w io.Writer, format string, digest *summary.Digest, result *models.SegmentationResult) error {
	switch format {
	case "md":
		return report.WriteMarkdown(w, digest, result)
	case "term":
		if digest != nil {
			if err := writeDigestLines(w, digest); err != nil {
				return err
			}
		}
		return report.RenderTerminal(w, result, report.IsTerminal(w))
	default:
		if digest != nil {
			return report.WriteJSON(w, struct {
				Digest *summary.Digest            `json:"digest"`
				Result *models.SegmentationResult `json:"result"`
			}{digest, result})
		}
		return report.WriteJSON(w, result)
	}
}

func writeDigestLines(w io.Writer, digest *summary.Digest) error {
	if _, err := fmt.Fprintf(w, "%s\n\n", digest.Headline); err != nil {
		return err
	}
	for _, c := range digest.Conversations {
		if _, err := fmt.Fprintf(w, "• %s: %s\n", c.Channel, c.Summary); err != nil {
			return err
		}
		for _, item := range c.ActionItems {
			if _, err := fmt.Fprintf(w, "    ☐ %s\n", item); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
