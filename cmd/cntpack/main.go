package main

import (
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/b1naryth1ef/cntpack"
	"github.com/b1naryth1ef/cntpack/build"
	"github.com/b1naryth1ef/cntpack/preview"
)

func main() {
	configFlag := &cli.PathFlag{
		Name:  "config",
		Usage: "path to the configuration file",
		Value: cntpack.DefaultConfigPath,
	}
	bundleFlag := &cli.StringFlag{
		Name:  "bundle",
		Usage: "only build the named bundle",
	}

	app := &cli.App{
		Name:        "cntpack",
		Usage:       "compile game assets into content bundles",
		Description: "walks asset source directories and packs PNG images, LDtk and Tiled levels and frame sequences into binary bundles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "build configured bundles",
				Action: commandBuild,
				Flags:  []cli.Flag{configFlag, bundleFlag},
			},
			{
				Name:   "watch",
				Usage:  "build configured bundles and rebuild them when sources change",
				Action: commandWatch,
				Flags: []cli.Flag{
					configFlag,
					bundleFlag,
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "quiet period before a rebuild",
						Value: build.DefaultDebounce,
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "list the content table of a bundle",
				ArgsUsage: "BUNDLE",
				Action:    commandInspect,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yaml",
						Usage: "print the table as a YAML manifest",
					},
				},
			},
			{
				Name:      "preview",
				Usage:     "render a map asset to a PNG image",
				ArgsUsage: "BUNDLE ASSET OUT.png",
				Action:    commandPreview,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "scale",
						Usage: "integer upscale factor",
						Value: 1,
					},
					&cli.BoolFlag{
						Name:  "no-collisions",
						Usage: "do not draw collision layers",
					},
					&cli.BoolFlag{
						Name:  "no-entities",
						Usage: "do not draw entity markers",
					},
				},
			},
		},
	}

	log.Logger = newLogger("info")
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("cntpack failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
}

// setupLogger picks the --log-level flag over the configured level.
func setupLogger(ctx *cli.Context, configured string) zerolog.Logger {
	level := configured
	if ctx.IsSet("log-level") {
		level = ctx.String("log-level")
	}
	log.Logger = newLogger(level)
	return log.Logger
}

func loadConfig(ctx *cli.Context) (*cntpack.Config, zerolog.Logger, error) {
	config, err := cntpack.LoadConfig(ctx.Path("config"))
	if err != nil {
		return nil, log.Logger, err
	}
	return config, setupLogger(ctx, config.LogLevel), nil
}

func commandBuild(ctx *cli.Context) error {
	config, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	return build.Build(sigCtx, config, build.BuildOpts{
		Bundle: ctx.String("bundle"),
		Logger: logger,
	})
}

func commandWatch(ctx *cli.Context) error {
	config, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	return build.Watch(sigCtx, config, build.BuildOpts{
		Bundle: ctx.String("bundle"),
		Logger: logger,
	}, ctx.Duration("debounce"))
}

func commandInspect(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.Exit("usage: cntpack inspect BUNDLE", 2)
	}
	setupLogger(ctx, "info")

	bundle, err := cntpack.OpenBundle(ctx.Args().First())
	if err != nil {
		return err
	}
	defer bundle.Close()

	if ctx.Bool("yaml") {
		manifest := cntpack.Manifest{
			Bundle: ctx.Args().First(),
			Assets: bundle.Entries,
		}
		return manifest.Write(os.Stdout)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tOFFSET\tSIZE")
	for _, e := range bundle.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", e.Name, e.Type, e.Offset, e.Size)
	}
	return tw.Flush()
}

func commandPreview(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return cli.Exit("usage: cntpack preview BUNDLE ASSET OUT.png", 2)
	}
	logger := setupLogger(ctx, "info")
	args := ctx.Args()

	bundle, err := cntpack.OpenBundle(args.Get(0))
	if err != nil {
		return err
	}
	defer bundle.Close()

	opts := preview.DefaultOptions()
	opts.Scale = ctx.Int("scale")
	opts.Collisions = !ctx.Bool("no-collisions")
	opts.Entities = !ctx.Bool("no-entities")

	img, err := preview.RenderAsset(bundle, args.Get(1), opts, logger)
	if errors.Is(err, cntpack.ErrAssetNotFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}

	out, err := os.Create(args.Get(2))
	if err != nil {
		return err
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return err
	}
	logger.Info().Str("asset", args.Get(1)).Str("output", args.Get(2)).Msg("wrote preview")
	return out.Close()
}

