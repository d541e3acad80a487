package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sluice/adapter"
	"github.com/justapithecus/sluice/adapter/redis"
	"github.com/justapithecus/sluice/adapter/webhook"
	"github.com/justapithecus/sluice/bytechan"
	"github.com/justapithecus/sluice/cli/config"
	"github.com/justapithecus/sluice/cli/tui"
	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/metrics"
	"github.com/justapithecus/sluice/pipeline"
	"github.com/justapithecus/sluice/sink"
	"github.com/justapithecus/sluice/transport"
	"github.com/justapithecus/sluice/types"
)

// Exit codes for the run command.
const (
	exitSuccess     = 0
	exitStreamError = 1
	exitSinkError   = 2
	exitConfigError = 3
)

// defaultFlushCount applies when neither flush trigger is configured.
const defaultFlushCount = 100

// RunCommand returns the run command.
// This is the only command that executes work.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute a pipe: stream framed records from a source into a sink",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			// Source flags
			&cli.StringFlag{
				Name:  "source",
				Usage: "Record source: file path, or tcp://host:port to listen on",
			},
			&cli.StringSliceFlag{
				Name:  "connect",
				Usage: "Dial an upstream record feed instead (repeatable, host:port)",
			},
			&cli.StringFlag{
				Name:  "connect-strategy",
				Usage: "Endpoint selection for --connect: round_robin, random, sticky",
				Value: "round_robin",
			},
			// Identity flags
			&cli.StringFlag{
				Name:  "pipe-id",
				Usage: "Pipe ID (generated if omitted)",
			},
			&cli.IntFlag{
				Name:  "attempt",
				Usage: "Attempt number (starts at 1)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "parent-pipe-id",
				Usage: "Parent pipe ID (required for retries)",
			},
			// Filter flags
			&cli.StringSliceFlag{
				Name:  "keep",
				Usage: "Record kinds to keep: item, checkpoint, log (default: all)",
			},
			// Batch flags
			&cli.IntFlag{
				Name:  "flush-count",
				Usage: "Flush the sink batch every N records",
			},
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "Flush the sink batch at this interval (e.g. 2s)",
			},
			// Storage flags
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Storage backend: file or s3",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Storage path (file: directory, s3: bucket/prefix); empty discards records",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for S3 backend (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint URL for S3-compatible providers",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion adapter: none, redis, webhook",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis channel for pipe_completed events",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-publish adapter timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter publish retries",
				Value: -1,
			},
			// Output flags
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print a summary box after the pipe finishes",
			},
			TUIFlag,
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: runAction,
	}
}

// runChoice is the merged run configuration: config file values with
// flag overrides applied on top.
type runChoice struct {
	source          string
	connect         []string
	connectStrategy string

	keep          []types.RecordKind
	flushCount    int
	flushInterval time.Duration

	storageBackend string
	storagePath    string
	s3Region       string
	s3Endpoint     string
	s3PathStyle    bool

	adapterType    string
	adapterURL     string
	adapterChannel string
	adapterHeaders map[string]string
	adapterTimeout time.Duration
	adapterRetries *int
}

func runAction(c *cli.Context) error {
	choice, err := resolveRunChoice(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	meta := types.NewPipeMeta()
	if pipeID := c.String("pipe-id"); pipeID != "" {
		meta.PipeID = pipeID
	}
	meta.Attempt = c.Int("attempt")
	if parent := c.String("parent-pipe-id"); parent != "" {
		meta.ParentPipeID = &parent
	}
	if err := meta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid pipe metadata: %v", err), exitConfigError)
	}

	quiet := c.Bool("quiet")
	useTUI := c.Bool("tui")
	var logger *log.Logger
	if quiet || useTUI {
		logger = log.NewNop()
	} else {
		logger = log.NewLogger(meta)
	}

	startTime := time.Now()
	loop := eventloop.New()

	source, err := buildSource(loop, choice, meta.PipeID, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open source: %v", err), exitConfigError)
	}

	pipeSink, backendName, err := buildSink(c.Context, choice, meta.PipeID, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot create sink: %v", err), exitConfigError)
	}
	defer func() { _ = pipeSink.Close() }()

	notifier, err := buildAdapter(choice)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot create adapter: %v", err), exitConfigError)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	collector := metrics.NewCollector("batcher", backendName, meta.PipeID)

	pipe, err := pipeline.New(&pipeline.Config{
		Meta:          meta,
		Loop:          loop,
		Source:        source,
		Sink:          pipeSink,
		KeepKinds:     choice.keep,
		FlushCount:    choice.flushCount,
		FlushInterval: choice.flushInterval,
		Adapter:       notifier,
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid pipe: %v", err), exitConfigError)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, execErr := executePipe(ctx, pipe, collector, meta.PipeID, useTUI)
	if execErr != nil {
		if errors.Is(execErr, sink.ErrBatcherInvalidConfig) {
			return cli.Exit(fmt.Sprintf("invalid batch configuration: %v", execErr), exitConfigError)
		}
		return cli.Exit(fmt.Sprintf("execution failed: %v", execErr), exitStreamError)
	}

	if !quiet && !useTUI {
		printRunResult(result)
	}
	if c.Bool("stats") {
		fmt.Println(tui.RenderSummary(result))
	}

	return cli.Exit("", outcomeToExitCode(result.Outcome.Status))
}

// executePipe runs the pipe, either inline or behind the live TUI. In
// TUI mode the pipe runs on a background goroutine (which becomes the
// loop goroutine) while the TUI owns the terminal; the finished channel
// keeps the result available even if the TUI exits without draining
// done.
func executePipe(ctx context.Context, pipe *pipeline.Pipe, collector *metrics.Collector, pipeID string, useTUI bool) (*pipeline.Result, error) {
	if !useTUI {
		return pipe.Execute(ctx)
	}

	var (
		result  *pipeline.Result
		execErr error
	)
	done := make(chan *pipeline.Result, 1)
	finished := make(chan struct{})
	go func() {
		result, execErr = pipe.Execute(ctx)
		close(finished)
		if result != nil {
			done <- result
		}
	}()

	if err := tui.RunPipeTUI(&tui.LiveView{
		PipeID:    pipeID,
		Collector: collector,
		Done:      done,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "tui failed: %v\n", err)
	}

	<-finished
	return result, execErr
}

// resolveRunChoice loads the optional config file and applies flag
// overrides. Flags win over config values.
func resolveRunChoice(c *cli.Context) (*runChoice, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	choice := &runChoice{
		source:         cfg.Source,
		flushCount:     cfg.Batch.FlushCount,
		flushInterval:  cfg.Batch.FlushInterval.Duration,
		storageBackend: cfg.Storage.Backend,
		storagePath:    cfg.Storage.Path,
		s3Region:       cfg.Storage.Region,
		s3Endpoint:     cfg.Storage.Endpoint,
		s3PathStyle:    cfg.Storage.S3PathStyle,
		adapterType:    cfg.Adapter.Type,
		adapterURL:     cfg.Adapter.URL,
		adapterChannel: cfg.Adapter.Channel,
		adapterHeaders: cfg.Adapter.Headers,
		adapterTimeout: cfg.Adapter.Timeout.Duration,
		adapterRetries: cfg.Adapter.Retries,
	}

	keep := cfg.Keep
	if c.IsSet("keep") {
		keep = c.StringSlice("keep")
	}
	kinds, err := (&config.Config{Keep: keep}).KeepKinds()
	if err != nil {
		return nil, err
	}
	choice.keep = kinds

	if c.IsSet("source") {
		choice.source = c.String("source")
	}
	if c.IsSet("connect") {
		choice.connect = c.StringSlice("connect")
	}
	choice.connectStrategy = c.String("connect-strategy")
	if c.IsSet("flush-count") {
		choice.flushCount = c.Int("flush-count")
	}
	if c.IsSet("flush-interval") {
		choice.flushInterval = c.Duration("flush-interval")
	}
	if c.IsSet("storage-backend") {
		choice.storageBackend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		choice.storagePath = c.String("storage-path")
	}
	if c.IsSet("s3-region") {
		choice.s3Region = c.String("s3-region")
	}
	if c.IsSet("s3-endpoint") {
		choice.s3Endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-path-style") {
		choice.s3PathStyle = c.Bool("s3-path-style")
	}
	if c.IsSet("adapter") {
		choice.adapterType = c.String("adapter")
	}
	if c.IsSet("adapter-url") {
		choice.adapterURL = c.String("adapter-url")
	}
	if c.IsSet("adapter-channel") {
		choice.adapterChannel = c.String("adapter-channel")
	}
	if c.IsSet("adapter-timeout") {
		choice.adapterTimeout = c.Duration("adapter-timeout")
	}
	if retries := c.Int("adapter-retries"); retries >= 0 {
		choice.adapterRetries = &retries
	}

	if choice.source == "" && len(choice.connect) == 0 {
		return nil, errors.New("a source is required (--source, --connect, or config file)")
	}
	if choice.flushCount <= 0 && choice.flushInterval <= 0 {
		choice.flushCount = defaultFlushCount
	}

	return choice, nil
}

// buildSource opens the record source. --connect dials an upstream
// feed; a tcp:// source listens for one inbound connection; anything
// else is a file path.
func buildSource(loop *eventloop.Loop, choice *runChoice, pipeID string, logger *log.Logger) (bytechan.Supplier, error) {
	if len(choice.connect) > 0 {
		return pipeline.DialSource(loop, choice.connect, transport.Strategy(choice.connectStrategy), pipeID, logger)
	}
	if addr, ok := strings.CutPrefix(choice.source, "tcp://"); ok {
		sup, bound, err := pipeline.ListenSource(loop, addr, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("listening for records", map[string]any{"addr": bound.String()})
		return sup, nil
	}
	return pipeline.OpenFileSource(loop, choice.source)
}

// buildSink creates the storage sink from the merged configuration.
// An empty storage path discards records (stub sink).
func buildSink(ctx context.Context, choice *runChoice, pipeID string, startTime time.Time) (sink.Sink, string, error) {
	if choice.storagePath == "" {
		return sink.NewStub(), "stub", nil
	}

	day := sink.DeriveDay(startTime)
	switch choice.storageBackend {
	case "file", "":
		s, err := sink.NewFile(sink.FileConfig{
			Root:   choice.storagePath,
			PipeID: pipeID,
			Day:    day,
		})
		return s, "file", err

	case "s3":
		bucket, prefix := sink.ParseS3Path(choice.storagePath)
		s, err := sink.NewS3(ctx, sink.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.s3Region,
			Endpoint:     choice.s3Endpoint,
			UsePathStyle: choice.s3PathStyle,
			PipeID:       pipeID,
			Day:          day,
		})
		return s, "s3", err

	default:
		return nil, "", fmt.Errorf("unknown storage-backend: %s (must be file or s3)", choice.storageBackend)
	}
}

// buildAdapter creates the completion adapter, or nil for none.
func buildAdapter(choice *runChoice) (adapter.Adapter, error) {
	switch choice.adapterType {
	case "", "none":
		return nil, nil

	case "redis":
		cfg := redis.Config{
			URL:     choice.adapterURL,
			Channel: choice.adapterChannel,
			Timeout: choice.adapterTimeout,
		}
		if choice.adapterRetries != nil {
			cfg.Retries = *choice.adapterRetries
		} else {
			cfg.Retries = redis.DefaultRetries
		}
		return redis.New(cfg)

	case "webhook":
		cfg := webhook.Config{
			URL:     choice.adapterURL,
			Headers: choice.adapterHeaders,
			Timeout: choice.adapterTimeout,
		}
		if choice.adapterRetries != nil {
			cfg.Retries = *choice.adapterRetries
		} else {
			cfg.Retries = webhook.DefaultRetries
		}
		return webhook.New(cfg)

	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be none, redis, or webhook)", choice.adapterType)
	}
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeCompleted:
		return exitSuccess
	case types.OutcomeSinkError:
		return exitSinkError
	case types.OutcomeStreamError, types.OutcomeCancelled:
		return exitStreamError
	default:
		return exitStreamError
	}
}

func printRunResult(result *pipeline.Result) {
	fmt.Printf("\npipe_id=%s, attempt=%d, outcome=%s, duration=%s\n",
		result.Meta.PipeID,
		result.Meta.Attempt,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Pipe Result ===\n")
	fmt.Printf("Pipe ID:      %s\n", result.Meta.PipeID)
	if result.Meta.ParentPipeID != nil {
		fmt.Printf("Parent Pipe:  %s\n", *result.Meta.ParentPipeID)
	}
	fmt.Printf("Attempt:      %d\n", result.Meta.Attempt)
	fmt.Printf("Outcome:      %s\n", result.Outcome.Status)
	if result.Outcome.Message != "" {
		fmt.Printf("Message:      %s\n", result.Outcome.Message)
	}
	fmt.Printf("Duration:     %s\n", result.Duration)

	fmt.Printf("\n=== Record Stats ===\n")
	fmt.Printf("Received:     %d\n", result.Received)
	fmt.Printf("Persisted:    %d\n", result.Persisted)
	fmt.Printf("Dropped:      %d\n", result.Dropped)
	fmt.Printf("Flushes:      %d\n", result.BatcherStats.Flushes)
	for trigger, count := range result.BatcherStats.FlushTriggers {
		fmt.Printf("  %s:\t%d\n", trigger, count)
	}
}
