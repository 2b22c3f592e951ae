// Package main is the entry point for the beatgrid CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/james-see/beatgrid/pkg/api"
	"github.com/james-see/beatgrid/pkg/config"
	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/daily"
	"github.com/james-see/beatgrid/pkg/logging"
	"github.com/james-see/beatgrid/pkg/mcptools"
	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/sequencer"
	"github.com/james-see/beatgrid/pkg/share"
	"github.com/james-see/beatgrid/pkg/store"
	"github.com/james-see/beatgrid/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	verbose    bool
	outputFile string
	beatNumber int
	serverPort int
	loop       bool
	bpmFlag    int

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beatgrid",
	Short: "Drum grid sequencer and daily beat puzzle",
	Long: `beatgrid is a 7-lane, 16-step drum machine for the terminal.

Program beats, play them through the system output, export them as MIDI,
WAV or JSON, and try to recreate the daily beat by ear.

Examples:
  beatgrid tui
  beatgrid daily -o today.mid
  beatgrid convert beat.json -o beat.wav
  beatgrid import beat.mid
  beatgrid play beat.mid --loop
  beatgrid share encode beat.json
  beatgrid serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert a beat between MIDI, WAV and JSON",
	Long:  `Detects the input format and converts to the format named by the output file extension.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var importCmd = &cobra.Command{
	Use:   "import <beat-file>",
	Short: "Add a MIDI or JSON beat file to the library",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <key>",
	Short: "Export a beat from the library",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var beatsCmd = &cobra.Command{
	Use:   "beats",
	Short: "List the beats in the library",
	Args:  cobra.NoArgs,
	RunE:  runBeats,
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Show today's puzzle beat",
	Args:  cobra.NoArgs,
	RunE:  runDaily,
}

var challengeCmd = &cobra.Command{
	Use:   "challenge <level>",
	Short: "Show a challenge level beat",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallenge,
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Build and open share links",
}

var shareEncodeCmd = &cobra.Command{
	Use:   "encode <beat-file>",
	Short: "Print a share link for a beat file",
	Args:  cobra.ExactArgs(1),
	RunE:  runShareEncode,
}

var shareDecodeCmd = &cobra.Command{
	Use:   "decode <link>",
	Short: "Show the beat inside a share link",
	Args:  cobra.ExactArgs(1),
	RunE:  runShareDecode,
}

var playCmd = &cobra.Command{
	Use:   "play [beat-file]",
	Short: "Play a beat file, or today's beat, through the audio output",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve beatgrid tools over MCP on stdio",
	RunE:  runMCP,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/beatgrid/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	_ = convertCmd.MarkFlagRequired("output")

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("output")

	dailyCmd.Flags().IntVarP(&beatNumber, "number", "n", 0, "Beat number (default today)")
	dailyCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Export the beat to this file")

	challengeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Export the beat to this file")

	shareDecodeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Export the beat to this file")

	playCmd.Flags().BoolVarP(&loop, "loop", "l", false, "Loop until interrupted")
	playCmd.Flags().IntVarP(&bpmFlag, "bpm", "b", 0, "Override the tempo")

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config)")

	shareCmd.AddCommand(shareEncodeCmd)
	shareCmd.AddCommand(shareDecodeCmd)

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(beatsCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

// setup loads the config and the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		path = p
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = c

	l, err := logging.Init(cfg.Log.Level, cfg.Log.Format, verbose)
	if err != nil {
		return err
	}
	logger = l
	logger.Debug("config loaded", "path", path)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	conv := newConverter()

	fmt.Printf("Converting %s -> %s\n", input, outputFile)
	if err := conv.ConvertFile(cmd.Context(), input, outputFile); err != nil {
		return err
	}
	fmt.Println("Conversion complete!")
	return nil
}

// printBeat shows a beat and writes it to outputFile when one was given
func printBeat(ctx context.Context, name string, p pattern.Pattern, bpm int) error {
	fmt.Printf("%s  ♪ %d BPM  %d notes\n\n", name, bpm, p.CountNotes())
	for _, row := range p.ActiveRows() {
		var cells strings.Builder
		for col := 0; col < pattern.Cols; col++ {
			if col > 0 && col%pattern.StepsPerBeat == 0 {
				cells.WriteByte(' ')
			}
			if p[row][col] {
				cells.WriteString("■")
			} else {
				cells.WriteString("·")
			}
		}
		fmt.Printf("%-10s %s\n", pattern.Instruments[row].Name, cells.String())
	}
	if outputFile == "" {
		return nil
	}
	return writeBeat(ctx, converter.Beat{Name: name, Pattern: p, BPM: bpm, Author: cfg.Author}, outputFile)
}

func writeBeat(ctx context.Context, b converter.Beat, path string) error {
	f := converter.DetectFormat(path)
	if f == converter.FormatUnknown {
		return errors.New("cannot determine output format from filename")
	}
	out, err := newConverter().Export(ctx, b, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out.Data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Printf("\nWrote %s\n", path)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	b, err := readBeat(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	key := store.NewKey()
	if err := newStore().Save(cmd.Context(), key, b.Pattern, b.BPM, b.Name); err != nil {
		return err
	}
	fmt.Printf("Imported %s as %s\n", b.Name, key)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	rec, ok, err := newStore().Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no beat saved as %q", args[0])
	}
	return writeBeat(cmd.Context(), converter.Beat{
		Name:      rec.Name,
		Author:    cfg.Author,
		Pattern:   rec.Pattern,
		BPM:       rec.BPM,
		CreatedAt: rec.UpdatedAt,
	}, outputFile)
}

func runBeats(cmd *cobra.Command, args []string) error {
	recs, err := newStore().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No saved beats")
		return nil
	}
	for _, rec := range recs {
		fmt.Printf("%-44s %-24s %3d BPM  %2d notes\n", rec.Key, rec.Name, rec.BPM, rec.Pattern.CountNotes())
	}
	return nil
}

func runDaily(cmd *cobra.Command, args []string) error {
	b := daily.Today(nowFunc())
	if beatNumber != 0 {
		if beatNumber < 1 {
			return fmt.Errorf("beat number must be at least 1, got %d", beatNumber)
		}
		b = daily.Generate(beatNumber)
	}
	return printBeat(cmd.Context(), b.Name(), b.Pattern, b.BPM)
}

func runChallenge(cmd *cobra.Command, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid level %q", args[0])
	}
	if level < 1 || level > daily.MaxChallenge {
		return fmt.Errorf("level must be within 1..%d, got %d", daily.MaxChallenge, level)
	}
	b := daily.Challenge(level)
	return printBeat(cmd.Context(), fmt.Sprintf("Challenge Level %d", level), b.Pattern, b.BPM)
}

func readBeat(ctx context.Context, path string) (converter.Beat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return converter.Beat{}, fmt.Errorf("failed to read input file: %w", err)
	}
	f := converter.DetectFormat(path)
	if f == converter.FormatUnknown {
		f = converter.DetectFormatFromContent(data)
	}
	b, err := newConverter().Import(data, f)
	if err != nil {
		return converter.Beat{}, err
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return b, nil
}

func runShareEncode(cmd *cobra.Command, args []string) error {
	b, err := readBeat(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sb := share.Beat{Name: b.Name, BPM: b.BPM, Pattern: b.Pattern}
	link, err := share.EncodeURL(cfg.Server.BaseURL, sb)
	if err != nil {
		return err
	}
	text, err := share.BeatText(sb, link)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runShareDecode(cmd *cobra.Command, args []string) error {
	b, err := share.DecodeURL(args[0])
	if err != nil {
		return err
	}
	name := b.Name
	if name == "" {
		name = "Shared beat"
	}
	return printBeat(cmd.Context(), name, b.Pattern, b.BPM)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	b := converter.Beat{}
	if len(args) == 1 {
		var err error
		if b, err = readBeat(ctx, args[0]); err != nil {
			return err
		}
	} else {
		d := daily.Today(nowFunc())
		b = converter.Beat{Name: d.Name(), Pattern: d.Pattern, BPM: d.BPM}
	}
	if bpmFlag != 0 {
		b.BPM = bpmFlag
	}

	out, err := openOutput(ctx, nil)
	if err != nil {
		return err
	}
	defer out.Close()

	done := make(chan struct{})
	opts := sequencer.PlayOptions{BPM: b.BPM, Loop: loop, OnComplete: func() { close(done) }}
	if !out.engine.Play(ctx, b.Pattern, opts) {
		return errors.New("audio output is unavailable")
	}
	fmt.Printf("Playing %s at %d BPM (ctrl+c to stop)\n", b.Name, pattern.ClampBPM(b.BPM))

	select {
	case <-done:
		// let the last hit ring out
		<-waitFor(ctx, pattern.StepDuration(b.BPM))
	case <-ctx.Done():
	}
	out.engine.Stop()
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	steps, observe := tui.StepChannel()
	deps := tui.Deps{
		Steps:     steps,
		Converter: newConverter(),
		Store:     newStore(),
		Sharer:    share.NewSharer(logger, share.NewClipboardChannel()),
		Tracks: tui.Tracks{
			Ambient: cfg.SoundscapePath(cfg.Soundscape.Ambient),
			Victory: cfg.SoundscapePath(cfg.Soundscape.Victory),
			Loss:    cfg.SoundscapePath(cfg.Soundscape.Loss),
		},
		BaseURL: cfg.Server.BaseURL,
		Author:  cfg.Author,
		Now:     nowFunc,
		Logger:  logger,
	}
	if wd, err := os.Getwd(); err == nil {
		deps.OutputDir = wd
	}

	out, err := openOutput(ctx, observe)
	if err != nil {
		logger.Warn("starting without sound", "error", err)
	} else {
		defer out.Close()
		deps.Engine = out.engine
		deps.Soundscape = out.soundscape
	}
	return tui.Run(deps)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	port := cfg.Server.Port
	if serverPort != 0 {
		port = serverPort
	}
	s := api.NewServer(newConverter(), newStore(),
		api.WithBaseURL(cfg.Server.BaseURL),
		api.WithLogger(logger))

	fmt.Printf("Starting API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
	return s.Run(ctx, fmt.Sprintf(":%d", port))
}

func runMCP(cmd *cobra.Command, args []string) error {
	tools := mcptools.New(newConverter(), newStore(), cfg.Server.BaseURL,
		mcptools.WithLogger(logger))
	return tools.ServeStdio(version)
}
