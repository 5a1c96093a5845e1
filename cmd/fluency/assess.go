package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fluency/internal/app"
	"github.com/MrWong99/fluency/internal/fluency"
)

type assessFlags struct {
	text     string
	audio    string
	lang     string
	jsonOnly bool
}

func newAssessCmd(root *rootOptions) *cobra.Command {
	f := &assessFlags{}

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess one recording against a passage",
		Example: `  fluency assess --text "The cat sat on the mat." \
    --audio gs://recordings/student-17.wav --lang en-IN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, app.WithVersion(version))
			if err != nil {
				return fmt.Errorf("initialise application: %w", err)
			}
			defer func() { _ = application.Shutdown(context.Background()) }()

			out := application.Assessor().Assess(cmd.Context(), fluency.Input{
				OriginalText: f.text,
				AudioURI:     f.audio,
				LanguageCode: f.lang,
			})
			return printOutcome(cmd.OutOrStdout(), out, f.jsonOnly)
		},
	}
	cmd.Flags().StringVar(&f.text, "text", "", "passage the student was asked to read")
	cmd.Flags().StringVar(&f.audio, "audio", "", "URI of the recording (gs://, s3://, file://, or a path)")
	cmd.Flags().StringVar(&f.lang, "lang", "", "BCP-47 language code, e.g. en-IN")
	cmd.Flags().BoolVar(&f.jsonOnly, "json", false, "print the report JSON only")
	for _, name := range []string{"text", "audio", "lang"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newCompareCmd() *cobra.Command {
	var (
		text       string
		transcript string
		jsonOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a known transcript with a passage, without transcription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := fluency.Evaluate(text, transcript, nil)
			return printOutcome(cmd.OutOrStdout(), out, jsonOnly)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "passage the student was asked to read")
	cmd.Flags().StringVar(&transcript, "transcript", "", "what the student read")
	cmd.Flags().BoolVar(&jsonOnly, "json", false, "print the report JSON only")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

// printOutcome writes out either as JSON or as a human-readable summary. A
// failed outcome is printed and then reported as [errAssessmentFailed].
func printOutcome(w io.Writer, out fluency.Outcome, jsonOnly bool) error {
	if jsonOnly {
		fmt.Fprintln(w, out.JSON())
	} else if out.Failed() {
		fmt.Fprintf(w, "Assessment failed: %s\n", out.Err.Error())
	} else {
		printReport(w, out.Report)
	}
	if out.Failed() {
		return errAssessmentFailed
	}
	return nil
}

func printReport(w io.Writer, r *fluency.Report) {
	m := r.ObjectiveMetrics
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Accuracy:\t%.1f%%\n", float64(m.AccuracyPercent))
	fmt.Fprintf(tw, "Words per minute:\t%d\n", m.WordsPerMinute)
	fmt.Fprintf(tw, "Correct words:\t%d / %d\n", m.CorrectWords, m.TotalWords)
	fmt.Fprintf(tw, "Duration:\t%.2fs\n", float64(m.AudioDurationSeconds))
	fmt.Fprintf(tw, "Transcript:\t%s\n", r.FullTranscript)
	fmt.Fprintf(tw, "Skipped:\t%s\n", list(r.ErrorAnalysis.Skipped))
	fmt.Fprintf(tw, "Added:\t%s\n", list(r.ErrorAnalysis.Added))
	_ = tw.Flush()

	diags := fluency.Diagnose(r)
	if len(diags) == 0 {
		fmt.Fprintln(w, "Mispronounced: -")
		return
	}
	fmt.Fprintln(w, "Mispronounced:")
	for _, d := range diags {
		note := ""
		if d.NearMiss {
			note = ", near miss"
		}
		fmt.Fprintf(w, "  expected %q, heard %q (similarity %.2f%s)\n", d.Expected, d.Heard, d.Score, note)
	}
}

func list(words []string) string {
	if len(words) == 0 {
		return "-"
	}
	return strings.Join(words, ", ")
}
