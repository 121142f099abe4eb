package main

import (
	"flag"
	"io"
	"time"

	"github.com/olivier-w/tftviz/internal/config"
)

// loadConfig parses args, loads the optional config file and applies the
// flags that were set on top of it.
func loadConfig(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("tftviz", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "path to an optional YAML configuration file")
	enabled := fs.Bool("x", true, "enable the spectrum visualizer")
	offset := fs.Int("t", 500, "visualizer offset in milliseconds (0-1000)")
	driver := fs.String("driver", "", "drawing surface: st7789 or terminal")
	replay := fs.String("replay", "", "play an audio file instead of reading the FIFO")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "x":
			cfg.Visualizer.Enabled = *enabled
		case "t":
			cfg.Visualizer.Offset = time.Duration(*offset) * time.Millisecond
		case "driver":
			cfg.Display.Driver = config.Driver(*driver)
		case "replay":
			cfg.Audio.Replay = *replay
		}
	})
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
