// Command judgebox accepts one control connection and judges compiled
// submissions against their test inputs, one process per test case.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/cmd/judgebox/config"
	"github.com/criyle/judgebox/envexec"
	"github.com/criyle/judgebox/loader"
	"github.com/criyle/judgebox/protocol"
	"github.com/criyle/judgebox/sandbox"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"google.golang.org/grpc/health"
)

var logger *zap.Logger

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Println("load .env failed ", err)
	}
	conf := loadConf()
	if conf.Version {
		fmt.Println(buildVersion())
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}
	warnIfNotLinux()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate, filter := newGate(conf)
	r := newRunner(conf, gate, filter)
	ld := loader.New(loader.Config{
		Root:      conf.ArtifactRoot,
		Threshold: conf.RotateThreshold,
		TmpDir:    conf.TmpDir,
		Logger:    logger,
	})

	// gate is installed once the control connection is accepted
	conn, err := acceptControl(ctx, conf)
	if err != nil {
		ld.Close()
		if ctx.Err() != nil {
			logger.Info("Interrupted before control connection")
			return
		}
		logger.Fatal("Accept control connection failed", zap.Error(err))
	}
	if err := capability.Install(gate); err != nil {
		logger.Fatal("Install capability gate failed", zap.Error(err))
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("Notify systemd failed", zap.Error(err))
	} else if ok {
		logger.Info("Notified systemd readiness")
	}

	hs := health.NewServer()
	o := sandbox.New(sandbox.Config{
		Loader:   ld,
		Runner:   r,
		Gate:     gate,
		Emitter:  conn,
		ExitCode: conf.ExitCode,
		Observer: newObserver(conf.EnableMetrics, hs),
		Logger:   logger,
	})

	servers := []initFunc{
		initMonitorHTTPServer(conf, o),
		initGRPCServer(conf, hs),
	}
	stops := []stopFunc{}
	for _, s := range servers {
		start, cleanUp := s()
		if start != nil {
			go start()
		}
		if cleanUp != nil {
			stops = append(stops, cleanUp)
		}
	}

	newForceGCWorker(ctx, conf)

	type served struct {
		code   int
		closed bool
		err    error
	}
	done := make(chan served, 1)
	go func() {
		code, closed, err := o.Serve(ctx, conn)
		done <- served{code, closed, err}
	}()

	var (
		res         served
		interrupted bool
	)
	select {
	case res = <-done:
	case <-ctx.Done():
		logger.Info("Signal received, closing control connection")
		interrupted = true
		conn.Close()
		res = <-done
	}
	stop()
	conn.Close()

	logger.Info("Shutting Down...", zap.Bool("closed", res.closed), zap.Int("code", res.code), zap.Error(res.err))
	shutdown(stops)

	if !interrupted && res.err != nil {
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
	os.Exit(res.code)
}

func shutdown(stops []stopFunc) {
	ctx, cancel := context.WithTimeout(context.TODO(), time.Second*3)
	defer cancel()

	var eg errgroup.Group
	for _, s := range stops {
		eg.Go(func() error {
			return s(ctx)
		})
	}
	go func() {
		logger.Info("Shutdown Finished", zap.Error(eg.Wait()))
		cancel()
	}()
	<-ctx.Done()
}

func warnIfNotLinux() {
	if runtime.GOOS != "linux" {
		logger.Warn("Platform is not primarily supported", zap.String("GOOS", runtime.GOOS))
		logger.Warn("Test cases run without rlimits or seccomp outside Linux")
	}
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		if term.IsTerminal(int(os.Stderr.Fd())) {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		if !conf.EnableDebug {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}

func acceptControl(ctx context.Context, conf *config.Config) (protocol.Conn, error) {
	if conf.UseWebSocket() {
		return protocol.AcceptWebSocket(ctx, conf.ControlAddr, logger)
	}
	return protocol.AcceptOne(ctx, conf.ControlAddr, logger)
}

func newForceGCWorker(ctx context.Context, conf *config.Config) {
	go func() {
		ticker := time.NewTicker(conf.ForceGCInterval)
		defer ticker.Stop()
		for {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			if mem.HeapInuse > uint64(*conf.ForceGCTarget) {
				logger.Info("Force GC as heap_in_use > target",
					zap.Stringer("heap_in_use", envexec.Size(mem.HeapInuse)),
					zap.Stringer("target", *conf.ForceGCTarget))
				runtime.GC()
				debug.FreeOSMemory()
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func listen(addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", addr)
}

func serveHTTP(name string, srv *http.Server) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return func() {
				lis, err := listen(srv.Addr)
				if err != nil {
					logger.Error(name+" listen failed", zap.Error(err))
					return
				}
				logger.Info("Starting "+name, zap.String("addr", lis.Addr().String()))
				if err := srv.Serve(lis); errors.Is(err, http.ErrServerClosed) {
					logger.Info(name+" stopped", zap.Error(err))
				} else {
					logger.Error(name+" stopped", zap.Error(err))
				}
			}, func(ctx context.Context) error {
				logger.Info(name + " shutting down")
				return srv.Shutdown(ctx)
			}
	}
}
