// Package daemon wires the poller/preprocessor core into one long-running
// process: it owns the configuration, the per-protocol pollers, the
// preprocessor, the metrics server and the RTC control channel, and
// sequences their startup and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/pollcore/internal/avail"
	"firestige.xyz/pollcore/internal/cachecfg"
	"firestige.xyz/pollcore/internal/checks"
	"firestige.xyz/pollcore/internal/config"
	"firestige.xyz/pollcore/internal/log"
	"firestige.xyz/pollcore/internal/metrics"
	"firestige.xyz/pollcore/internal/model"
	"firestige.xyz/pollcore/internal/poller"
	"firestige.xyz/pollcore/internal/preproc"
	"firestige.xyz/pollcore/internal/rtc"
)

// Daemon manages the process lifecycle: configuration, the poller set, the
// preprocessor, the metrics endpoint and the RTC control socket.
type Daemon struct {
	cfg        *config.GlobalConfig
	configPath string
	pidFile    string

	cache cachecfg.Cache
	sink  avail.AvailabilitySink

	preproc *preproc.Preprocessor
	pollers []*poller.Poller

	metricsServer *metrics.Server
	rtcServer     *rtc.Server
	rtcHandler    *rtc.Handler

	ctx    context.Context
	cancel context.CancelFunc

	wg           sync.WaitGroup
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads configPath and constructs a Daemon bound to cache (the shared
// configuration cache, an external collaborator per spec.md §1) and sink
// (the availability IPC transport). pidFile may be empty to skip PID-file
// management.
func New(configPath, pidFile string, cache cachecfg.Cache, sink avail.AvailabilitySink) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config: %w", err)
	}

	d := &Daemon{
		cfg:          cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		cache:        cache,
		sink:         sink,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes logging, the metrics server, the preprocessor, one
// poller per protocol, and the RTC control socket, in that order.
func (d *Daemon) Start() error {
	log.Init(&log.LoggerConfig{Level: d.cfg.Log.Level, Pattern: d.cfg.Log.Pattern, Time: d.cfg.Log.Time})
	logger := log.GetLogger()
	logger.Infof("pollcore starting, hostname=%s config=%s", d.cfg.Node.Hostname, d.configPath)

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	if d.cfg.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.cfg.Metrics.Listen, d.cfg.Metrics.Path)
		if err := d.metricsServer.Start(d.ctx); err != nil {
			return fmt.Errorf("daemon: start metrics server: %w", err)
		}
		logger.Infof("metrics server listening on %s%s", d.cfg.Metrics.Listen, d.cfg.Metrics.Path)
	}

	d.preproc = preproc.New(d.cfg.Preproc.Workers)
	d.preproc.Start(d.ctx)

	d.pollers = []*poller.Poller{
		d.newPoller(model.PollerAgent, checks.NewAgentAdapter(d.cfg.Poller.Nameserver)),
		d.newPoller(model.PollerHTTP, checks.NewHTTPAdapter()),
		d.newPoller(model.PollerSNMP, checks.NewSNMPAdapter()),
	}
	for _, p := range d.pollers {
		p := p
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := p.Run(d.ctx); err != nil && err != context.Canceled {
				logger.WithError(err).Errorf("poller exited")
			}
		}()
	}

	d.rtcHandler = rtc.NewHandler()
	d.rtcHandler.OnShutdown(func() { d.TriggerShutdown() })
	d.rtcHandler.OnSNMPCacheReload(func() error {
		for _, p := range d.pollers {
			p.RequestSNMPCacheReload()
		}
		return nil
	})
	d.rtcHandler.OnConfigReload(func() error { return d.Reload() })
	d.rtcHandler.OnStatus(func() map[string]interface{} {
		return map[string]interface{}{"pollers": len(d.pollers), "hostname": d.cfg.Node.Hostname}
	})

	d.rtcServer = rtc.NewServer(d.cfg.Control.Socket, d.rtcHandler)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.rtcServer.Start(d.ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Errorf("rtc server failed")
		}
	}()

	logger.Infof("pollcore started")
	return nil
}

func (d *Daemon) newPoller(t model.PollerType, adapter checks.Adapter) *poller.Poller {
	tracker := avail.NewTracker(avail.Tunables{
		UnavailableDelay:  d.cfg.Poller.UnavailableDelay,
		UnreachableDelay:  d.cfg.Poller.UnreachableDelay,
		UnreachablePeriod: d.cfg.Poller.UnreachablePeriod,
	})
	return poller.New(t, d.cfg.Poller, poller.Deps{
		Cache:   d.cache,
		Adapter: adapter,
		Preproc: d.preproc,
		Avail:   tracker,
		Sink:    d.sink,
	})
}

// Stop performs graceful shutdown: cancel the pollers and RTC/metrics
// servers, wait for their goroutines, then stop the preprocessor and remove
// the PID file.
func (d *Daemon) Stop() {
	logger := log.GetLogger()
	logger.Infof("pollcore stopping")

	d.cancel()
	d.wg.Wait()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Errorf("error stopping metrics server")
		}
	}

	d.preproc.Stop()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Errorf("error removing pid file")
	}

	logger.Infof("pollcore stopped")
}

// Run blocks until a shutdown signal (SIGTERM/SIGINT) or an RTC SHUTDOWN
// command is observed. A SIGHUP runs Reload and Run keeps waiting.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	logger := log.GetLogger()
	logger.Infof("pollcore running")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				logger.Infof("received shutdown signal %s", sig)
				d.Stop()
				return nil
			case syscall.SIGHUP:
				logger.Infof("received reload signal")
				if err := d.Reload(); err != nil {
					logger.WithError(err).Errorf("reload failed")
				}
			}

		case <-d.shutdownChan:
			logger.Infof("shutdown triggered via rtc command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file and logs a warning naming any
// changed log, concurrency, worker-count or hysteresis setting, since the
// logger, pollers and preprocessor are already constructed around the old
// values and are not rebuilt; none of those changes take effect before a
// restart.
func (d *Daemon) Reload() error {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: reload config: %w", err)
	}

	logger := log.GetLogger()

	var coldChanged []string
	if newCfg.Log.Level != d.cfg.Log.Level || newCfg.Log.Pattern != d.cfg.Log.Pattern {
		// log.Init only ever applies its first call (sync.Once), so a
		// changed log configuration cannot be picked up without a restart.
		coldChanged = append(coldChanged, "log")
	}
	if newCfg.Poller.MaxConcurrentChecksPerPoller != d.cfg.Poller.MaxConcurrentChecksPerPoller {
		coldChanged = append(coldChanged, "poller.max_concurrent_checks_per_poller")
	}
	if newCfg.Preproc.Workers != d.cfg.Preproc.Workers {
		coldChanged = append(coldChanged, "preproc.workers")
	}
	if newCfg.Poller.UnavailableDelay != d.cfg.Poller.UnavailableDelay ||
		newCfg.Poller.UnreachableDelay != d.cfg.Poller.UnreachableDelay ||
		newCfg.Poller.UnreachablePeriod != d.cfg.Poller.UnreachablePeriod {
		coldChanged = append(coldChanged, "poller hysteresis tunables")
	}
	if len(coldChanged) > 0 {
		logger.Warnf("config fields changed that require a restart to take effect: %v", coldChanged)
	}

	d.cfg = newCfg
	return nil
}

// TriggerShutdown requests a graceful stop from outside Run's select loop
// (e.g. the RTC SHUTDOWN handler).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
