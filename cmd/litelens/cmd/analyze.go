package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/overlay"
	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/utils"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

// analyzeOptions are the replay settings of the analyze command.
type analyzeOptions struct {
	Rotation int
	FPS      float64
	Loop     int
	Gate     int
	Format   string
	Stream   bool
	Overlay  string
	Timeout  time.Duration
}

// analyzeCmd replays image files through the analyzer as if they were
// camera frames.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [image files or directories...]",
	Short: "Replay image files through the frame analyzer",
	Long: `Feed images to the analyzer as a camera frame stream and print the
resulting state.

Frames pass through the same throttle gate as live camera frames; use --gate
to analyze every Nth frame and --loop to repeat the sequence.

Examples:
  litelens analyze frame.jpg --gate 1
  litelens analyze frames/ --mode text --target de --format json
  litelens analyze frames/ --stream --fps 15
  litelens analyze cup.jpg --gate 1 --overlay cup_boxes.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		f := cmd.Flags()
		if f.Changed("target") {
			cfg.Text.TargetLanguage, _ = f.GetString("target")
		}
		if f.Changed("threshold") {
			cfg.Object.ConfidenceThreshold, _ = f.GetFloat64("threshold")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var opts analyzeOptions
		opts.Rotation, _ = f.GetInt("rotation")
		opts.FPS, _ = f.GetFloat64("fps")
		opts.Loop, _ = f.GetInt("loop")
		opts.Gate, _ = f.GetInt("gate")
		opts.Format, _ = f.GetString("format")
		opts.Stream, _ = f.GetBool("stream")
		opts.Overlay, _ = f.GetString("overlay")
		opts.Timeout, _ = f.GetDuration("timeout")
		if opts.Format != "text" && opts.Format != "json" {
			return fmt.Errorf("invalid format: %s (must be text or json)", opts.Format)
		}

		paths, err := utils.ListImages(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return errors.New("no supported images found")
		}
		return runAnalyze(cmd.Context(), cmd.OutOrStdout(), &cfg, paths, opts)
	},
}

func runAnalyze(ctx context.Context, out io.Writer, cfg *config.Config, paths []string, opts analyzeOptions) error {
	if opts.Gate > 0 {
		cfg.Object.FrameInterval = opts.Gate
		cfg.Text.FrameInterval = opts.Gate
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Warn("Analyzer did not shut down cleanly", "error", err)
		}
	}()

	streamDone := make(chan struct{})
	if opts.Stream {
		updates, cancel := a.state.Subscribe()
		defer func() {
			cancel()
			<-streamDone
		}()
		go func() {
			defer close(streamDone)
			enc := json.NewEncoder(out)
			for snap := range updates {
				_ = enc.Encode(snap)
			}
		}()
	} else {
		close(streamDone)
	}

	var tick *time.Ticker
	if opts.FPS > 0 {
		tick = time.NewTicker(time.Duration(float64(time.Second) / opts.FPS))
		defer tick.Stop()
	}

	outcomes := make(map[string]int)
	var seq uint64
	loops := max(opts.Loop, 1)
	for range loops {
		for _, p := range paths {
			img, meta, err := utils.LoadImage(p)
			if err != nil {
				return err
			}
			seq++
			outcome := a.analyzer.Analyze(vision.NewFrame(img, opts.Rotation, seq, nil))
			outcomes[outcome]++
			slog.Debug("Frame submitted", "seq", seq, "path", meta.Path, "outcome", outcome)

			if tick != nil {
				select {
				case <-tick.C:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := a.analyzer.Drain(drainCtx); err != nil {
		return fmt.Errorf("waiting for analysis: %w", err)
	}

	snap := a.state.Snapshot()
	slog.Info("Replay finished", "frames", seq, "processed", outcomes[pipeline.OutcomeProcessed],
		"dropped_gate", outcomes[pipeline.OutcomeDroppedGate], "dropped_busy", outcomes[pipeline.OutcomeDroppedBusy])

	if opts.Overlay != "" {
		if err := writeOverlay(opts.Overlay, snap); err != nil {
			return err
		}
	}

	if opts.Stream {
		return nil
	}
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	_, err = io.WriteString(out, formatSnapshot(snap))
	return err
}

// writeOverlay draws the final detections on their capture and saves it.
func writeOverlay(path string, snap state.Snapshot) error {
	var capture image.Image
	for _, d := range snap.Detections {
		if d.Image != nil {
			capture = d.Image
			break
		}
	}
	if capture == nil {
		return errors.New("no capture to draw the overlay on")
	}
	img := overlay.NewRenderer().Render(capture, snap.Detections)
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	slog.Info("Overlay written", "path", path)
	return nil
}

// formatSnapshot renders a snapshot for humans.
func formatSnapshot(s state.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s (generation %d)\n", s.Mode, s.Generation)
	if len(s.Detections) > 0 {
		b.WriteString("Detections:\n")
		for _, d := range s.Detections {
			r := d.Box
			fmt.Fprintf(&b, "  %s [%d,%d %dx%d]\n", overlay.Caption(d), r.Min.X, r.Min.Y, r.Dx(), r.Dy())
		}
	}
	if t := s.Translation; t != nil {
		fmt.Fprintf(&b, "Translation: %s (%s) -> %s (%s)\n", t.OriginalText, t.SourceLanguage, t.TranslatedText, t.TargetLanguage)
	}
	if len(s.SearchResults) > 0 {
		b.WriteString("Search results:\n")
		for i, r := range s.SearchResults {
			fmt.Fprintf(&b, "  %d. %s", i+1, r.Title)
			if r.URL != "" {
				fmt.Fprintf(&b, " <%s>", r.URL)
			}
			b.WriteByte('\n')
		}
	}
	if s.Searching {
		b.WriteString("Searching...\n")
	}
	if s.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", s.Message)
	}
	if len(s.Detections) == 0 && s.Translation == nil && len(s.SearchResults) == 0 && s.Message == "" {
		b.WriteString("No results\n")
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	d := config.DefaultConfig()
	analyzeCmd.Flags().Int("rotation", 0, "sensor rotation of the frames in degrees (0, 90, 180, 270)")
	analyzeCmd.Flags().Float64("fps", 0, "frames per second to replay at (0 = as fast as possible)")
	analyzeCmd.Flags().Int("loop", 1, "number of times to replay the frames")
	analyzeCmd.Flags().Int("gate", 0, "analyze every Nth frame (0 = configured frame interval)")
	analyzeCmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	analyzeCmd.Flags().Bool("stream", false, "print every state change as a JSON line")
	analyzeCmd.Flags().String("overlay", "", "write the final capture with detection boxes to this file")
	analyzeCmd.Flags().Duration("timeout", 30*time.Second, "time to wait for in-flight analysis after the last frame")
	analyzeCmd.Flags().String("target", d.Text.TargetLanguage, "translation target language (code or name)")
	analyzeCmd.Flags().Float64("threshold", d.Object.ConfidenceThreshold, "minimum object confidence (0..1)")
}
