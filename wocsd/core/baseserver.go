package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/wocs/internals/assert"
	"github.com/Oudwins/wocs/internals/conf"
	"github.com/Oudwins/wocs/internals/dispatch"
	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/executor"
	"github.com/Oudwins/wocs/internals/scheduler"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/internals/templates"
)

const DBFileName = "wocs.db"

type BaseServer struct {
	Config     *conf.Config
	Env        *env.EnvStruct
	Logger     *slog.Logger
	Store      *store.Store
	Executor   *executor.Executor
	Dispatcher dispatch.Dispatcher
	Pipeline   *Pipeline
	Scheduler  *scheduler.Loop
	Templates  *templates.Registry
	logFile    *os.File
}

type Options struct {
	Env    *env.EnvStruct
	Config *conf.Config
	Logger *slog.Logger
	Now    func() time.Time
}

// New builds the process-wide base server from the environment and the
// config file. Startup failures are fatal.
func New() *BaseServer {
	e := env.Get()
	config := conf.GetConfig()
	logger, logFile := InitLogger(config.DataDir, e.LOG_LEVEL)

	base, err := Build(Options{Env: e, Config: config, Logger: logger})
	assert.AssertNil(err, "[CORE] Failed to initialize base server")
	base.logFile = logFile
	return base
}

// Build wires store, executor, pipeline, dispatcher and scheduler together.
func Build(opts Options) (*BaseServer, error) {
	if opts.Env == nil || opts.Config == nil {
		return nil, errors.New("env and config are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dataDir := filepath.Clean(opts.Config.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st.SetClock(opts.Now)

	registry, err := templates.Load(dataDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	exec := executor.New(st, opts.Logger)
	pipeline := NewPipeline(st, exec, PipelineOptions{
		Logger:          opts.Logger,
		Now:             opts.Now,
		DefaultPriority: opts.Config.Tasks.DefaultPriority,
	})

	target, err := conf.ParseQueueURL(opts.Env.QUEUE_URL, dataDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	dispatcher, err := dispatch.New(dispatch.Options{
		Target:  target,
		Queue:   opts.Config.Queue,
		Execute: pipeline.Execute,
		Hooks:   pipeline.Hooks(),
		Logger:  opts.Logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	pipeline.Attach(dispatcher)

	loop := scheduler.New(st, pipeline, scheduler.Options{
		Interval:  opts.Config.Scheduler.IntervalDuration(),
		BatchSize: opts.Config.Scheduler.BatchSize,
		Logger:    opts.Logger,
		Now:       opts.Now,
	})

	opts.Logger.Info("[CORE] Base server ready",
		slog.String("dataDir", dataDir),
		slog.String("queue", string(dispatcher.Mode())),
	)

	return &BaseServer{
		Config:     opts.Config,
		Env:        opts.Env,
		Logger:     opts.Logger,
		Store:      st,
		Executor:   exec,
		Dispatcher: dispatcher,
		Pipeline:   pipeline,
		Scheduler:  loop,
		Templates:  registry,
	}, nil
}

// Run drives the queue consumers and the scheduler until ctx is done.
func (b *BaseServer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Dispatcher.Run(ctx) })
	g.Go(func() error { return b.Scheduler.Run(ctx) })
	return g.Wait()
}

func (b *BaseServer) Close() error {
	errs := []error{b.Dispatcher.Close(), b.Store.Close()}
	if b.logFile != nil {
		errs = append(errs, b.logFile.Close())
	}
	return errors.Join(errs...)
}
