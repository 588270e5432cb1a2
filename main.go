package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cropdeck/geometry"
	"cropdeck/raster"
	"cropdeck/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("cropdeck"),
		kong.Description("Crop images to a fixed aspect ratio, interactively or from recorded sessions."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "cropdeck.json", "~/.config/cropdeck/config.json"),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level)
	zerolog.DefaultContextLogger = &log.Logger
}

// cropFlags are shared by every command that runs crop sessions.
type cropFlags struct {
	AspectRatio  float64 `help:"Crop aspect ratio as width/height, 0 for free" default:"1" env:"CROPDECK_ASPECT_RATIO"`
	Shape        string  `help:"Output clip shape" enum:"rect,circle" default:"rect" env:"CROPDECK_SHAPE"`
	OutputSize   int     `help:"Output surface side in pixels" default:"400" env:"CROPDECK_OUTPUT_SIZE"`
	OutputHeight int     `help:"Output surface height in pixels, 0 keeps it square" default:"0" env:"CROPDECK_OUTPUT_HEIGHT"`
	Format       string  `help:"Output format" enum:"jpeg,png,webp" default:"jpeg" env:"CROPDECK_FORMAT"`
	Quality      int     `help:"Encoder quality for jpeg and webp" default:"95" env:"CROPDECK_QUALITY"`
	Clamp        string  `help:"How resizes past the image edge are corrected" enum:"joint,sequential" default:"joint" env:"CROPDECK_CLAMP"`
	OutputDir    string  `help:"Directory for cropped files, defaults to <dir>/output" type:"path" env:"CROPDECK_OUTPUT_DIR"`
	Verbose      bool    `help:"Enable verbose logging" short:"v" env:"CROPDECK_VERBOSE"`
}

func (f cropFlags) options() (session.Options, error) {
	shape, err := raster.ParseShape(f.Shape)
	if err != nil {
		return session.Options{}, err
	}
	format, err := raster.ParseFormat(f.Format)
	if err != nil {
		return session.Options{}, err
	}
	clamp, err := geometry.ParseClampMode(f.Clamp)
	if err != nil {
		return session.Options{}, err
	}
	if f.OutputSize <= 0 || f.OutputSize > raster.MaxOutputSize {
		return session.Options{}, fmt.Errorf("output size must be between 1 and %d", raster.MaxOutputSize)
	}
	if f.OutputHeight < 0 || f.OutputHeight > raster.MaxOutputSize {
		return session.Options{}, fmt.Errorf("output height must be between 0 and %d", raster.MaxOutputSize)
	}
	return session.Options{
		AspectRatio: f.AspectRatio,
		Clamp:       clamp,
		Output: raster.Config{
			OutputSize:   f.OutputSize,
			OutputHeight: f.OutputHeight,
			Shape:        shape,
			Format:       format,
			Quality:      f.Quality,
		},
	}, nil
}

func (f cropFlags) outputDir(base string) string {
	if f.OutputDir != "" {
		return f.OutputDir
	}
	return filepath.Join(base, "output")
}

type serveCmd struct {
	RootDir string    `arg:"" help:"Root directory to serve files from" type:"existingdir"`
	Crop    cropFlags `embed:""`
	Open    bool      `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	JSON    bool      `help:"Print committed crops as JSON lines instead of writing files"`
	Once    bool      `help:"Exit after the first committed crop" default:"true" negatable:""`
}

func (cmd *serveCmd) Run() error {
	setupLogging(cmd.Crop.Verbose)
	opts, err := cmd.Crop.options()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = log.Logger.WithContext(ctx)

	outputDir := cmd.Crop.outputDir(cmd.RootDir)
	app := NewWebApp(Config{
		RootDir:  cmd.RootDir,
		Defaults: opts,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnCommit: func(c Commit) {
			if cmd.JSON {
				printJSONL([]Commit{c})
			} else if err := saveCommit(outputDir, c); err != nil {
				log.Ctx(ctx).Error().Err(err).Str("filename", c.Filename).Msg("Failed to save crop")
			} else {
				log.Ctx(ctx).Info().Str("filename", c.Filename).Stringer("rect", c.Source).Msg("Saved crop")
			}

			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

func saveCommit(dir string, c Commit) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return writeOutput(dir, c.Filename, c.Rect, c.Bitmap.Format, c.Bitmap.Data)
}

type replayCmd struct {
	Script  string    `arg:"" help:"JSONL file of recorded sessions, - for stdin" default:"-"`
	BaseDir string    `help:"Directory the script file names are relative to" default:"." type:"existingdir" env:"CROPDECK_BASE_DIR"`
	Crop    cropFlags `embed:""`
}

func (cmd *replayCmd) Run() error {
	setupLogging(cmd.Crop.Verbose)
	opts, err := cmd.Crop.options()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = log.Logger.WithContext(ctx)

	var r io.Reader = os.Stdin
	if cmd.Script != "-" {
		f, err := os.Open(cmd.Script)
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		r = f
	}
	scripts, err := readScripts(r)
	if err != nil {
		return err
	}

	executor := ScriptExecutor{
		BaseDir:   cmd.BaseDir,
		OutputDir: cmd.Crop.outputDir(cmd.BaseDir),
		Cropper:   NewSessionCropper(),
		Defaults:  opts,
	}
	return executor.Exec(ctx, scripts)
}

type lsCmd struct {
	RootDir string `arg:"" help:"Directory to list images from" type:"existingdir"`
	Verbose bool   `help:"Enable verbose logging" short:"v" env:"CROPDECK_VERBOSE"`
}

func (cmd *lsCmd) Run() error {
	setupLogging(cmd.Verbose)
	ctx := log.Logger.WithContext(context.Background())

	dir, err := walkImages(ctx, cmd.RootDir)
	if err != nil {
		return fmt.Errorf("failed to walk dir: %w", err)
	}
	printJSONL(dir.Files)
	return nil
}

type cliArgs struct {
	Config kong.ConfigFlag `help:"Load flags from a JSON file" env:"CROPDECK_CONFIG"`
	Serve  serveCmd        `cmd:"" default:"withargs" help:"Crop images interactively in the browser"`
	Replay replayCmd       `cmd:"" help:"Replay recorded crop sessions without a browser"`
	Ls     lsCmd           `cmd:"" help:"List images with their dimensions"`
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
