// Command plcsim runs a program headlessly: it parses the source file,
// drives its scan engine at a fixed rate, optionally bridges its reserved
// I/O signals to a Modbus/TCP device, and logs scan-boundary summaries.
// The rendering/window layer is out of scope; this is the text-mode stand-
// in for it, grounded on the original tool's main.cpp frame loop shape
// (file-watch check, event handling, sim update, fieldbus sync) minus the
// windowing and input-device concerns that loop also owned.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kavik-labs/plcsim/fieldbus"
	"github.com/kavik-labs/plcsim/internal/watch"
	"github.com/kavik-labs/plcsim/lang"
	"github.com/kavik-labs/plcsim/scan"
	"github.com/kavik-labs/plcsim/topo"
)

const (
	defaultRateHz  = 10.0
	configFileName = "modbus_config.txt"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: plcsim <program.txt>")
		os.Exit(1)
	}
	path := os.Args[1]

	eng, err := loadEngine(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("parse failed")
	}
	log.Info().Str("path", path).Int("nodes", len(eng.Program().Nodes)).Msg("loaded program")

	bridge, err := startFieldbus()
	if err != nil {
		log.Warn().Err(err).Msg("fieldbus unavailable, running without it")
		bridge = nil
	} else {
		defer bridge.Disconnect()
	}

	watcher, err := watch.New(path)
	if err != nil {
		log.Warn().Err(err).Msg("hot reload disabled")
	} else {
		defer watcher.Close()
	}

	run(path, eng, bridge, watcher)
}

func loadEngine(path string) (*scan.Engine, error) {
	prog, err := lang.ParseFile(path)
	if err != nil {
		return nil, err
	}
	order := topo.SourceOrder(prog)
	return scan.NewEngine(prog, order), nil
}

func startFieldbus() (*fieldbus.Bridge, error) {
	cfg, err := fieldbus.LoadConfig(configFileName)
	if err != nil {
		return nil, err
	}
	b := fieldbus.New(cfg)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)).Msg("fieldbus connected")
	return b, nil
}

func run(path string, eng *scan.Engine, bridge *fieldbus.Bridge, watcher *watch.Watcher) {
	var reloadCh <-chan struct{}
	if watcher != nil {
		reloadCh = watcher.Events
	}

	var scans uint64
	last := time.Now()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / defaultRateHz))
	defer ticker.Stop()

	for range ticker.C {
		if reloadCh != nil {
			select {
			case <-reloadCh:
				reloadProgram(path, &eng)
			default:
			}
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		if bridge != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			if err := bridge.Sync(ctx, eng); err != nil {
				log.Warn().Err(err).Msg("fieldbus sync failed")
			}
			cancel()
		}

		if eng.IsValid() {
			eng.Update(dt, defaultRateHz, scan.FastScan, true, false)
			scans++
		}

		event := log.Info().Uint64("scan", scans).Int("line", eng.CurrentLine())
		if bridge != nil && bridge.LastError() != "" {
			event = event.Str("fieldbus_error", bridge.LastError())
		}
		event.Msg("scan complete")
	}
}

func reloadProgram(path string, eng **scan.Engine) {
	next, err := loadEngine(path)
	if err != nil {
		log.Warn().Err(err).Msg("hot reload failed, keeping previous program")
		return
	}
	*eng = next
	log.Info().Str("path", path).Msg("hot reload complete")
}
