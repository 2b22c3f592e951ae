package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/james-see/beatgrid/pkg/audio"
	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/sequencer"
	"github.com/james-see/beatgrid/pkg/soundscape"
	"github.com/james-see/beatgrid/pkg/store"
	"github.com/james-see/beatgrid/pkg/transport"
)

func nowFunc() time.Time {
	return time.Now()
}

// sampleLoader reads the configured sample directory; nil selects synthetic clicks
func sampleLoader() converter.SampleLoader {
	if cfg.Audio.SampleDir == "" {
		return nil
	}
	return converter.NewFileSampleLoader(cfg.Audio.SampleDir)
}

func newConverter() *converter.Converter {
	return converter.New(sampleLoader(),
		converter.WithSampleRate(cfg.Audio.SampleRate),
		converter.WithLogger(logger))
}

// newStore opens the beat library in the data directory, or keeps it in
// memory when no data directory can be resolved
func newStore() store.Repository {
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		logger.Warn("no data directory, beats will not persist", "error", err)
		return store.NewMemoryStore()
	}
	return store.NewFileStore(filepath.Join(dir, "beats.json"))
}

// output is the live audio stack: one device, one scheduler driven by the
// device clock, and the engine and soundscape coordinator sharing them
type output struct {
	device     *audio.Device
	runner     *transport.Runner
	engine     *sequencer.Engine
	soundscape *soundscape.Coordinator
}

func openOutput(ctx context.Context, observe func(step int)) (*output, error) {
	kit := converter.LoadKit(ctx, sampleLoader(), cfg.Audio.SampleRate, logger)

	device, err := audio.Open(kit, cfg.Audio.SampleRate, logger)
	if err != nil {
		return nil, err
	}

	sched := transport.NewScheduler()
	runner := transport.NewRunner(sched, device, cfg.Audio.Lookahead, cfg.Audio.Interval)
	runner.Start(ctx)

	opts := []sequencer.Option{sequencer.WithLogger(logger)}
	if observe != nil {
		opts = append(opts, sequencer.WithStepObserver(observe))
	}
	return &output{
		device: device,
		runner: runner,
		engine: sequencer.New(device, sched, opts...),
		soundscape: soundscape.New(device.Loader(), sched,
			soundscape.WithLogger(logger),
			soundscape.WithVolume(cfg.Soundscape.Volume),
			soundscape.WithMuted(cfg.Soundscape.Muted)),
	}, nil
}

// Close stops playback, then the scheduler loop, then the device
func (o *output) Close() {
	o.engine.Close()
	o.soundscape.Close()
	o.runner.Stop()
	if err := o.device.Close(); err != nil {
		logger.Debug("audio device close failed", "error", err)
	}
}

// waitFor returns a channel closed after d or when ctx ends
func waitFor(ctx context.Context, d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}()
	return done
}
