// Command camspeed estimates vehicle speeds from a fixed camera's tracked
// detections, records them to sqlite and serves overlays, stats and charts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/camspeed/internal/api"
	"github.com/banshee-data/camspeed/internal/config"
	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/monitoring"
	"github.com/banshee-data/camspeed/internal/pipeline"
	"github.com/banshee-data/camspeed/internal/serialmux"
	"github.com/banshee-data/camspeed/internal/speed"
	"github.com/banshee-data/camspeed/internal/units"
	"github.com/banshee-data/camspeed/internal/version"
	"github.com/banshee-data/camspeed/internal/visualiser"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen = flag.String("grpc-listen", "", "gRPC overlay stream address (disabled when empty)")
	dbPath     = flag.String("db-path", "camspeed.db", "Path to the sqlite database")
	sitePath   = flag.String("site", "config/site.example.yaml", "Site calibration YAML")
	tuningPath = flag.String("config", "", "Tuning JSON (built-in defaults when empty)")
	unitsFlag  = flag.String("units", "", "Override the speed unit ("+units.GetValidUnitsString()+")")
	envFile    = flag.String("env-file", ".env", "Optional dotenv file with CAMSPEED_* overrides")
	debug      = flag.Bool("debug", false, "Log per-detection diagnostics")
	versionFlg = flag.Bool("version", false, "Print version and exit")

	feedFile   = flag.String("feed-file", "", "Replay detections from a JSON-lines file (- for stdin)")
	feedUDP    = flag.String("feed-udp", "", "Receive detection datagrams on this address")
	udpRcvBuf  = flag.Int("udp-rcvbuf", 4<<20, "UDP receive buffer in bytes")
	feedPCAP   = flag.String("feed-pcap", "", "Replay detection datagrams from a pcap file")
	pcapPort   = flag.Int("pcap-port", 0, "UDP destination port to replay from -feed-pcap (0 = any)")
	serialPort = flag.String("serial-port", "", "Read detections from a serial device")
	baudRate   = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	realtime   = flag.Float64("realtime", 0, "Pace replayed feeds at this multiple of real time (0 = as fast as possible)")
	statsEvery = flag.Duration("stats-interval", 30*time.Second, "Feed statistics log interval (0 disables)")
	exitOnEOF  = flag.Bool("exit-on-eof", false, "Exit when the feed ends instead of serving the results")
)

func main() {
	flag.Parse()
	if *versionFlg {
		fmt.Println(version.String())
		return
	}
	if err := loadEnvFile(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	if err := applyEnvOverrides(flag.CommandLine, lookupEnv); err != nil {
		log.Fatalf("invalid environment override: %v", err)
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.EnableDebug(*debug)
	log.Printf("starting %s", version.String())

	engineCfg, site, err := loadEngineConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	opened, err := openFeed(feedOptions{
		File:       *feedFile,
		UDPAddr:    *feedUDP,
		UDPRcvBuf:  *udpRcvBuf,
		PCAP:       *feedPCAP,
		PCAPPort:   *pcapPort,
		SerialPort: *serialPort,
		Serial:     serialmux.PortOptions{BaudRate: *baudRate},
	}, serialmux.OpenSerialPort)
	if err != nil && !errors.Is(err, errNoFeed) {
		log.Fatalf("failed to open detection feed: %v", err)
	}
	if opened == nil {
		log.Printf("no detection feed configured, serving stored sessions only")
	} else {
		defer opened.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var (
		cache     = pipeline.NewOverlayCache()
		publisher *visualiser.Publisher
		sessionID string
		mux       serialmux.SerialMuxInterface
	)

	if *grpcListen != "" {
		cfg := visualiser.DefaultConfig()
		cfg.ListenAddr = *grpcListen
		publisher = visualiser.NewPublisher(cfg)
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start overlay stream: %v", err)
		}
		defer publisher.Stop()
	}

	if opened != nil {
		session := &db.Session{
			Source:   opened.description,
			SiteName: site.Name,
			Line:     engineCfg.Line,
			FPS:      engineCfg.FPS,
			Unit:     engineCfg.Unit,
		}
		if err := database.CreateSession(session); err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		sessionID = session.ID
		defer func() {
			if err := database.EndSession(session.ID); err != nil {
				log.Printf("failed to end session: %v", err)
			}
		}()
		log.Printf("session %s: site=%q source=%s fps=%.2f unit=%s", session.ID, site.Name, session.Source, session.FPS, session.Unit)

		recorder := db.NewRecorder(database, session.ID)
		engine, err := speed.NewEngine(engineCfg, speed.WithListener(recorder))
		if err != nil {
			log.Fatalf("invalid engine configuration: %v", err)
		}

		sinks := []pipeline.Sink{cache}
		if publisher != nil {
			sinks = append(sinks, publisher)
		}
		runner := pipeline.NewRunner(opened.source, engine,
			pipeline.WithSinks(sinks...),
			pipeline.WithRealtime(*realtime),
		)

		if opened.mux != nil {
			mux = opened.mux
			g.Go(func() error {
				if err := opened.mux.Monitor(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("serial monitor: %w", err)
				}
				log.Print("monitor routine terminated")
				return nil
			})
		}

		g.Go(func() error {
			err := runner.Run(gctx)
			counts := runner.Counts()
			log.Printf("pipeline stopped: frames=%d out_of_order=%d flushed=%d recorder_failures=%d",
				counts.Frames, counts.OutOfOrder, counts.Flushed, recorder.Failures())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if *exitOnEOF {
				stop()
			}
			return nil
		})

		if *statsEvery > 0 {
			g.Go(func() error {
				ticker := time.NewTicker(*statsEvery)
				defer ticker.Stop()
				for {
					select {
					case <-gctx.Done():
						opened.stats.LogStats(opened.description)
						return nil
					case <-ticker.C:
						opened.stats.LogStats(opened.description)
					}
				}
			})
		}
	}

	// HTTP server
	srv := api.NewServer(database, cache, sessionID, mux)
	httpMux := srv.ServeMux()
	database.AttachAdminRoutes(httpMux)
	if mux != nil {
		mux.AttachAdminRoutes(httpMux)
	} else {
		serialmux.NewDisabledSerialMux().AttachAdminRoutes(httpMux)
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(httpMux),
	}
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("shutdown after error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadEngineConfig reads the site and tuning files named by the flags.
func loadEngineConfig() (speed.Config, *config.SiteConfig, error) {
	site, err := config.LoadSiteConfig(*sitePath)
	if err != nil {
		return speed.Config{}, nil, err
	}

	tuning := config.DefaultTuningConfig()
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			return speed.Config{}, nil, err
		}
	}

	cfg := tuning.EngineConfig(site)
	if *unitsFlag != "" {
		if !units.IsValid(*unitsFlag) {
			return speed.Config{}, nil, fmt.Errorf("invalid -units %q: must be one of %s", *unitsFlag, units.GetValidUnitsString())
		}
		cfg.Unit = *unitsFlag
	}
	return cfg, site, nil
}
