// burngate is an SMTP front-end filter: it accepts inbound mail for a set of
// configured domains, checks each recipient against a Recipient Oracle, and
// relays accepted messages to a backend MTA. See config.Config for the
// environment-variable surface.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TempyEmail/burngate/config"
	"github.com/TempyEmail/burngate/logging"
	"github.com/TempyEmail/burngate/metrics"
	"github.com/TempyEmail/burngate/oracle"
	"github.com/TempyEmail/burngate/relay"
	"github.com/TempyEmail/burngate/smtp"
	"github.com/TempyEmail/burngate/tlsupgrade"
)

func main() {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("configuration error")
	}

	recipientOracle, err := buildOracle(cfg)
	if err != nil {
		logger.WithError(err).Fatal("could not build recipient oracle")
	}

	relayClient := relay.NewClient(cfg.BackendSMTP, cfg.ServerName, time.Duration(cfg.ConnTimeoutSecs)*time.Second)

	var upgrader *tlsupgrade.Upgrader
	if cfg.TLSAvailable {
		upgrader = tlsupgrade.NewUpgrader(*cfg.TLSCert)
	}

	counters := metrics.New()

	engine := smtp.NewEngine(smtp.Config{
		ServerName:      cfg.ServerName,
		AcceptedDomains: cfg.AcceptedDomains,
		MaxMessageSize:  cfg.MaxMessageSize,
		ConnTimeout:     time.Duration(cfg.ConnTimeoutSecs) * time.Second,
		TLSAvailable:    cfg.TLSAvailable,
	}, recipientOracle, relayClient, upgrader, counters, logger)

	stopMetrics := make(chan struct{})
	go metrics.RunSink(counters, time.Duration(cfg.MetricsInterval)*time.Second, logger, stopMetrics)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.WithError(err).Fatal("could not listen")
	}
	logger.WithField("addr", cfg.ListenAddr).Info("listening")

	go acceptLoop(ln, engine, logger)

	waitForShutdown()
	close(stopMetrics)
	ln.Close()
}

// buildOracle picks the Recipient Oracle implementation per spec.md §4.2: a
// live Redis instance when REDIS_URL or REDIS_HOST is configured, otherwise
// an empty in-memory oracle (which answers every recipient NotFound, the
// same fail-safe-closed posture a misconfigured deployment should have).
func buildOracle(cfg *config.Config) (oracle.Oracle, error) {
	if cfg.Redis.URL == "" && cfg.Redis.Host == "" {
		return oracle.NewMemory(nil), nil
	}

	return oracle.NewRedis(oracle.RedisOption{
		URL:      cfg.Redis.URL,
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	}, cfg.Redis.KeyPattern, cfg.Redis.SetName, cfg.Redis.CheckMode)
}

// acceptLoop accepts connections until ln is closed, handing each off to its
// own Session Engine goroutine, mirroring the teacher's Server.Serve loop
// (gopistolet's smtp/smtp.go) generalized to the new Engine type.
func acceptLoop(ln net.Listener, engine *smtp.Engine, logger *logrus.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go engine.Run(conn, conn.RemoteAddr().String())
	}
}

func waitForShutdown() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
