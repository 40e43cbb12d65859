package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/finishline/internal/classify"
	"github.com/banshee-data/finishline/internal/config"
	"github.com/banshee-data/finishline/internal/detection"
	"github.com/banshee-data/finishline/internal/monitor"
	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/pipeline"
	"github.com/banshee-data/finishline/internal/publish"
	"github.com/banshee-data/finishline/internal/report"
	"github.com/banshee-data/finishline/internal/scoreboard"
	"github.com/banshee-data/finishline/internal/storage/sqlite"
	"github.com/banshee-data/finishline/internal/timeutil"
	"github.com/banshee-data/finishline/internal/version"
)

var (
	videoSource    = flag.String("video", "0", "Video file, stream URL or capture device index")
	detectionsPath = flag.String("detections", "", "Detector output as JSON lines, or - for stdin")
	configPath     = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	dbPath         = flag.String("db", "finishline.db", "SQLite database path")
	cacheDir       = flag.String("cache-dir", ".finishline", "Directory for the cached chart image")
	listen         = flag.String("listen", ":8080", "HTTP monitor listen address (empty disables)")
	grpcListen     = flag.String("grpc-listen", "", "gRPC health listen address (empty disables)")
	kafkaBrokers   = flag.String("kafka-brokers", "", "Kafka bootstrap servers (or FINISHLINE_KAFKA_BROKERS)")
	kafkaTopic     = flag.String("kafka-topic", "", "Kafka topic for crossings (or FINISHLINE_KAFKA_TOPIC)")
	scoreboardPort = flag.String("scoreboard", "", "Serial port of the scoreboard (empty disables)")
	scoreboardBaud = flag.Int("scoreboard-baud", 9600, "Scoreboard baud rate")
	reportPath     = flag.String("report", "", "Write a PNG bar chart of the counts here on exit")
	runID          = flag.String("run-id", "", "Run identifier (random when empty)")
	streamTime     = flag.Bool("stream-time", false, "Timestamp crossings by video position instead of wall clock")
	debug          = flag.Bool("debug", false, "Enable the diagnostic log stream")
	trace          = flag.Bool("trace", false, "Enable the per-frame trace log stream")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	envDefault(kafkaBrokers, "FINISHLINE_KAFKA_BROKERS")
	envDefault(kafkaTopic, "FINISHLINE_KAFKA_TOPIC")

	var diagW, traceW io.Writer
	if *debug || *trace {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	monitoring.SetLogWriters(os.Stderr, diagW, traceW)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if *detectionsPath == "" {
		log.Fatal("-detections is required")
	}
	var detIn io.Reader = os.Stdin
	if *detectionsPath != "-" {
		f, err := os.Open(*detectionsPath)
		if err != nil {
			log.Fatalf("failed to open detections: %v", err)
		}
		defer f.Close()
		detIn = f
	}

	video, err := pipeline.OpenVideo(*videoSource)
	if err != nil {
		log.Fatalf("failed to open video source: %v", err)
	}
	defer video.Close()

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	crossings := sqlite.NewCrossingStore(db)

	var clock timeutil.Clock = timeutil.RealClock{}
	if *streamTime {
		clock = timeutil.NewStreamClock(time.Now())
	}

	weighting := classify.NewTemporalWeightingFromTuning(cfg)
	classifier, err := classify.NewClassifierFromTuning(cfg, weighting)
	if err != nil {
		log.Fatalf("failed to create classifier: %v", err)
	}
	defer classifier.Close()

	var mask *pipeline.Mask
	if path := cfg.GetMaskPath(); path != "" {
		if mask, err = pipeline.LoadMask(path, cfg.GetOutputWidth(), cfg.GetOutputHeight()); err != nil {
			log.Fatalf("failed to load detection mask: %v", err)
		}
	}

	sinks := []pipeline.CrossingSink{crossings}
	var closers []io.Closer

	if *kafkaBrokers != "" {
		kp, err := publish.NewKafkaPublisher(publish.KafkaConfig{Brokers: *kafkaBrokers, Topic: *kafkaTopic})
		if err != nil {
			log.Fatalf("failed to create kafka publisher: %v", err)
		}
		sinks = append(sinks, kp)
		closers = append(closers, kp)
	}

	// Resuming a named run carries its persisted counts forward and keeps
	// new object IDs clear of those already logged.
	var (
		resumed map[string]int
		firstID int64
	)
	if *runID != "" {
		if resumed, err = crossings.CountsByLabel(*runID); err != nil {
			log.Fatalf("failed to load counts for run %s: %v", *runID, err)
		}
		maxID, err := crossings.MaxObjectID(*runID)
		if err != nil {
			log.Fatalf("failed to load object IDs for run %s: %v", *runID, err)
		}
		firstID = maxID + 1
	}

	p, err := pipeline.New(pipeline.Options{
		Config:     cfg,
		Detections: detection.NewJSONLinesSource(detIn, cfg.GetMinConfidence()),
		Classifier: classifier,
		Weighting:  weighting,
		ChartCache: sqlite.NewCalibrationStore(db),
		CacheDir:   *cacheDir,
		Mask:       mask,
		Clock:      clock,
		RunID:      *runID,
		FirstID:    firstID,
	})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}

	if len(resumed) > 0 {
		p.Aggregator().Restore(resumed)
		log.Printf("resumed run %s with %v, object IDs from %d", *runID, resumed, firstID)
	}

	if *scoreboardPort != "" {
		port, err := scoreboard.OpenSerial(*scoreboardPort, scoreboard.PortOptions{BaudRate: *scoreboardBaud})
		if err != nil {
			log.Fatalf("failed to open scoreboard: %v", err)
		}
		sb := scoreboard.New(port, p.Totals)
		sinks = append(sinks, sb)
		closers = append(closers, sb)
	}
	p.SetSinks(sinks)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	health := monitor.NewGRPCHealth()

	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", *grpcListen, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := health.Serve(lis); err != nil {
				log.Printf("grpc health server stopped: %v", err)
			}
		}()
	}

	if *listen != "" {
		mux := http.NewServeMux()
		if err := db.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}
		monitor.NewServer(p, crossings).Attach(mux)
		server := &http.Server{Addr: *listen, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
		log.Printf("monitor listening on %s", *listen)
	}

	log.Printf("%s: run %s started on %s", version.String(), p.RunID(), *videoSource)
	health.SetServing(true)
	if err := p.Run(ctx, video, nil); err != nil {
		log.Printf("pipeline stopped: %v", err)
	}
	health.SetServing(false)

	// The video may end before a signal arrives; stop the servers either way.
	stop()
	health.Stop()
	wg.Wait()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("failed to close sink: %v", err)
		}
	}

	totals := p.Totals()
	if *reportPath != "" && len(totals) > 0 {
		title := fmt.Sprintf("Run %s", p.RunID())
		if err := report.WriteCountsPNG(*reportPath, totals, title); err != nil {
			log.Printf("failed to write report: %v", err)
		} else {
			log.Printf("count report written to %s", *reportPath)
		}
	}
	log.Printf("run %s complete: %v", p.RunID(), totals)
}

// envDefault fills an unset string flag from the environment.
func envDefault(flagValue *string, key string) {
	if *flagValue == "" {
		*flagValue = os.Getenv(key)
	}
}
