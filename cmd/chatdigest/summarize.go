package main

import (
	"bytes"
	"fmt"

	"chatdigest/internal/email"
	"chatdigest/internal/report"
	"chatdigest/internal/summary"

	"github.com/spf13/cobra"
)

func summarizeCmd() *cobra.Command {
	var (
		flags   runFlags
		sendTo  bool
		to      string
		subject string
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Segment an export window and write an activity digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(flags.format); err != nil {
				return err
			}
			e := newEnv()
			ctx := cmd.Context()

			r, err := segmentExport(ctx, e, &flags)
			if err != nil {
				return err
			}
			defer func() { _ = r.backend.Close() }()

			if r.backend.Client == nil {
				return fmt.Errorf("summarize needs an OpenAI or Azure OpenAI provider")
			}
			svc, err := summary.NewService(r.backend.Client, e.logger)
			if err != nil {
				return err
			}
			window := summary.Window{Since: r.window.since, Until: r.window.until}
			digest, err := svc.Summarize(ctx, r.user, window, r.result.Conversations, r.result.Stats)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(flags.out)
			if err != nil {
				return err
			}
			if err := writeResult(w, flags.format, digest, r.result); err != nil {
				_ = closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}

			if !sendTo {
				return nil
			}
			var md bytes.Buffer
			if err := report.WriteMarkdown(&md, digest, r.result); err != nil {
				return err
			}
			recipient := firstNonEmpty(to, e.cfg.DigestToEmail)
			if subject == "" {
				subject = digestSubject(r.user, window)
			}
			sender := email.NewEmailService(e.cfg.SendGridAPIKey, e.cfg.DigestFromEmail)
			if err := sender.SendDigest(recipient, subject, md.String()); err != nil {
				return err
			}
			e.logger.Info().Str("to", recipient).Msg("Digest emailed")
			return nil
		},
	}
	flags.register(cmd, "md")
	cmd.Flags().BoolVar(&sendTo, "email", false, "also mail the Markdown digest through SendGrid")
	cmd.Flags().StringVar(&to, "to", "", "digest recipient (default $DIGEST_TO_EMAIL)")
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	return cmd
}

func digestSubject(user string, window summary.Window) string {
	subject := "Activity digest"
	if user != "" {
		subject += " for " + user
	}
	switch {
	case !window.Since.IsZero() && !window.Until.IsZero():
		subject += fmt.Sprintf(" (%s to %s)", window.Since.Format(dateLayout), window.Until.Format(dateLayout))
	case !window.Since.IsZero():
		subject += " since " + window.Since.Format(dateLayout)
	case !window.Until.IsZero():
		subject += " until " + window.Until.Format(dateLayout)
	}
	return subject
}
