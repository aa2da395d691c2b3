// synctityd runs profile syncs on request: over HTTP, from a Kafka topic,
// or both, one command at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrej220/synctity/pkg/consumer"
	"github.com/andrej220/synctity/pkg/executor"
	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/profile"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/andrej220/synctity/pkg/serverutil"
	dm "github.com/andrej220/synctity/pkg/shared-models"
	"github.com/andrej220/synctity/pkg/sink"
	"golang.org/x/sync/errgroup"
)

func main() {
	fs := flag.NewFlagSet(SERVICENAME, flag.ExitOnError)
	logCfg := lg.RegisterFlags(fs, SERVICENAME)
	configPath := fs.String("config", CONFIGFILENAME, "daemon config file")
	fs.Parse(os.Args[1:])

	logger := lg.New(logCfg)
	defer logger.Sync()

	if err := serve(*configPath, logger); err != nil {
		logger.Error("Fatal error", lg.Err(err))
		os.Exit(1)
	}
}

func serve(configPath string, logger lg.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("Starting service", lg.String("config", configPath), lg.String("profiles", cfg.Profiles.Store))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := cfg.profileStore()
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	store := profile.NewStore(backend)
	set, err := store.Load()
	if err != nil {
		return err
	}
	logger.Info("Profiles loaded", lg.Strings("names", set.Names()))

	launcher, closeLauncher, err := newLauncher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLauncher()

	sinks := sink.Fanout{sink.NewLog(logger)}
	if cfg.Kafka.Events != nil {
		events := sink.NewKafka(*cfg.Kafka.Events, logger)
		defer events.Close()
		sinks = append(sinks, events)
		logger.Info("Publishing events", lg.String("topic", cfg.Kafka.Events.Topic))
	}

	r := runner.New(launcher, sinks, runner.WithLogger(logger))
	defer r.Close()
	d := newDaemon(r, set, logger)

	err = store.Watch(func(set *profile.Set, err error) {
		if err != nil {
			logger.Error("Failed to reload profiles", lg.Err(err))
			return
		}
		d.setProfiles(set)
		logger.Info("Profiles reloaded", lg.Strings("names", set.Names()))
	})
	if err != nil {
		logger.Warn("Profile changes will not be picked up", lg.Err(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srvCfg := serverutil.DefaultServerConfig()
		srvCfg.Port = cfg.Server.Port
		srvCfg.Logger = logger
		return serverutil.RunServer(ctx, d.routes(), srvCfg)
	})
	if cfg.Kafka.Requests != nil {
		reqs := consumer.NewConsumer[dm.RunRequest](*cfg.Kafka.Requests)
		defer reqs.Close()
		logger.Info("Consuming run requests", lg.String("topic", cfg.Kafka.Requests.Topic))
		g.Go(func() error {
			err := reqs.Run(ctx, func(req dm.RunRequest) {
				if err := validate.Struct(req); err != nil {
					logger.Warn("Invalid run request", lg.Err(err))
					return
				}
				if _, err := d.startRun(req); err != nil {
					logger.Warn("Run request rejected", lg.String("profile", req.Profile), lg.Err(err))
				}
			}, func(err error) {
				logger.Error("Failed to read run request", lg.Err(err))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	logger.Info("Service stopped")
	return err
}

// newLauncher runs commands locally unless an SSH host is configured.
func newLauncher(ctx context.Context, cfg *DaemonConfig, logger lg.Logger) (runner.Launcher, func(), error) {
	if cfg.SSH == nil {
		return &runner.LocalLauncher{Shell: cfg.Runner.Shell, Dir: cfg.Runner.Dir}, func() {}, nil
	}
	clientCfg, err := cfg.SSH.ClientConfig(logger)
	if err != nil {
		return nil, nil, err
	}
	client, err := executor.NewResilientClient(ctx, cfg.SSH.Addr, clientCfg, executor.DefaultResilienceConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Running commands over SSH", lg.String("addr", cfg.SSH.Addr), lg.String("user", cfg.SSH.User))
	return &executor.SSHLauncher{Client: client, Dir: cfg.Runner.Dir, Logger: logger}, func() { client.Close() }, nil
}
