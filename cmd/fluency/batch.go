package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/fluency/internal/app"
	"github.com/MrWong99/fluency/internal/fluency"
)

const defaultConcurrency = 4

// Manifest lists the recordings assessed by the batch command.
type Manifest struct {
	Items []ManifestItem `yaml:"items"`
}

// ManifestItem is one recording of a [Manifest]. ID defaults to the item's
// 1-based position.
type ManifestItem struct {
	ID    string `yaml:"id"`
	Text  string `yaml:"text"`
	Audio string `yaml:"audio"`
	Lang  string `yaml:"lang"`
}

// batchResult is one line of batch output.
type batchResult struct {
	ID           string          `json:"id"`
	AssessmentID string          `json:"assessment_id,omitempty"`
	Outcome      fluency.Outcome `json:"outcome"`
}

// assessor is the part of *fluency.Assessor the batch runner needs.
type assessor interface {
	Assess(ctx context.Context, in fluency.Input) fluency.Outcome
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	var (
		manifestPath string
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Assess every recording in a manifest",
		Long: `batch assesses the recordings listed in a YAML manifest concurrently and
prints one JSON line per item, in manifest order:

  items:
    - id: student-17
      text: "The cat sat on the mat."
      audio: gs://recordings/student-17.wav
      lang: en-IN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, app.WithVersion(version))
			if err != nil {
				return fmt.Errorf("initialise application: %w", err)
			}
			defer func() { _ = application.Shutdown(context.Background()) }()

			failed, err := runBatch(cmd.Context(), application.Assessor(), m.Items, concurrency, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			slog.Info("batch complete", "items", len(m.Items), "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d: %w", failed, len(m.Items), errAssessmentFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "path to the YAML manifest")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultConcurrency, "maximum assessments in flight")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

// loadManifest reads and validates the manifest at path.
func loadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %q: %w", path, err)
	}
	defer f.Close()
	return parseManifest(f)
}

func parseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("manifest: decode yaml: %w", err)
	}

	var errs []error
	if len(m.Items) == 0 {
		errs = append(errs, errors.New("manifest: no items"))
	}
	seen := make(map[string]bool, len(m.Items))
	for i := range m.Items {
		it := &m.Items[i]
		if it.ID == "" {
			it.ID = strconv.Itoa(i + 1)
		}
		if seen[it.ID] {
			errs = append(errs, fmt.Errorf("manifest: items[%d]: duplicate id %q", i, it.ID))
		}
		seen[it.ID] = true
		if it.Text == "" {
			errs = append(errs, fmt.Errorf("manifest: items[%d] (%s): text is required", i, it.ID))
		}
		if it.Audio == "" {
			errs = append(errs, fmt.Errorf("manifest: items[%d] (%s): audio is required", i, it.ID))
		}
		if it.Lang == "" {
			errs = append(errs, fmt.Errorf("manifest: items[%d] (%s): lang is required", i, it.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// runBatch assesses items with at most concurrency in flight and writes one
// JSON line per item to w, in input order. It returns the number of failed
// assessments. A failed assessment is not an error; a cancelled context is.
func runBatch(ctx context.Context, a assessor, items []ManifestItem, concurrency int, w io.Writer) (int, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]batchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu     sync.Mutex
		failed int
	)
	for i, it := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := a.Assess(gctx, fluency.Input{
				OriginalText: it.Text,
				AudioURI:     it.Audio,
				LanguageCode: it.Lang,
			})
			results[i] = batchResult{ID: it.ID, AssessmentID: out.ID, Outcome: out}
			if out.Failed() {
				mu.Lock()
				failed++
				mu.Unlock()
				slog.Warn("assessment failed", "id", it.ID, "err", out.Err.Error())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed, fmt.Errorf("batch: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return failed, fmt.Errorf("batch: write result %s: %w", r.ID, err)
		}
	}
	return failed, nil
}
