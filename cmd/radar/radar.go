// Command radar collects point-cloud frames from a TI mmWave sensor over
// serial, stores them in sqlite, and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mmwave.report/internal/api"
	"github.com/banshee-data/mmwave.report/internal/config"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
	"github.com/banshee-data/mmwave.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Replay fixture data instead of opening a serial port")
	listen      = flag.String("listen", ":8080", "Listen address")
	dataPort    = flag.String("port", "/dev/ttyUSB1", "Serial data port (ignored in dev mode)")
	commandPort = flag.String("command-port", "", "Serial config port for sensor CLI commands (optional)")
	dbPath      = flag.String("db-path", "mmwave_data.db", "Path to sqlite database")
	configPath  = flag.String("config", "", "Path to JSON tuning config (optional)")
	profilePath = flag.String("profile", "", "Path to sensor chirp profile to stream on startup (optional)")
	fixture     = flag.String("fixture", "fixtures/frames.bin", "Raw capture replayed in dev mode")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

// handleFrames records each decoded frame and publishes it to live stream
// subscribers. Storage failures are logged, not fatal; the stream continues.
func handleFrames(database *db.DB, hub *api.FrameHub, session string, frames []mmwave.Frame) {
	for _, frame := range frames {
		if err := database.RecordFrame(session, frame); err != nil {
			log.Printf("failed to record frame %d: %v", frame.Header.FrameNumber, err)
		}
		hub.Publish(frame)
	}
}

func main() {
	flag.Parse()
	monitoring.SetVerbose(*verbose)
	log.Printf("mmwave-report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	// The migrate subcommand manages the schema and exits.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := &config.TuningConfig{}
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	var mux serialmux.SerialMuxInterface
	if *devMode {
		wire, err := os.ReadFile(*fixture)
		if err != nil {
			log.Fatalf("failed to open fixture file: %v", err)
		}
		mux = serialmux.NewMockSerialMux(wire, 100*time.Millisecond)
	} else {
		if *dataPort == "" {
			log.Fatal("Serial port is required")
		}
		dataOpts := serialmux.DataPortOptions()
		dataOpts.BaudRate = tuning.GetDataBaudRate()
		commandOpts := serialmux.CommandPortOptions()
		commandOpts.BaudRate = tuning.GetCommandBaudRate()

		var err error
		mux, err = serialmux.NewRealSerialMux(*dataPort, *commandPort, dataOpts, commandOpts)
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
	}
	defer mux.Close()
	mux.SetChunkSize(tuning.GetReadChunkBytes())

	if *profilePath != "" {
		data, err := os.ReadFile(*profilePath)
		if err != nil {
			log.Fatalf("failed to read sensor profile: %v", err)
		}
		if err := mux.Initialize(strings.Split(string(data), "\n")); err != nil {
			log.Fatalf("failed to initialize sensor: %v", err)
		}
		log.Printf("streamed sensor profile %s", *profilePath)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	session, err := database.StartSession(*dataPort)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("collection session %s", session)

	hub := api.NewFrameHub()
	decoder := mmwave.NewDecoder(mmwave.Options{
		MaxFrameBytes:  tuning.GetMaxFrameBytes(),
		MaxBufferBytes: tuning.GetMaxBufferBytes(),
		Clock:          timeutil.RealClock{},
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	// decode routine: feed raw chunks through the decoder, record and
	// publish each completed frame
	var decoderMu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, chunks := mux.Subscribe()
		defer mux.Unsubscribe(id)

		stallTimeout := tuning.GetStallTimeout()
		stallCheck := time.NewTicker(stallTimeout)
		defer stallCheck.Stop()

		for {
			select {
			case chunk := <-chunks:
				decoderMu.Lock()
				frames, err := decoder.Ingest(chunk)
				decoderMu.Unlock()
				if err != nil {
					// Protocol errors are expected when the stream glitches;
					// the decoder has already resynchronised.
					monitoring.Debugf("decode: %v", err)
				}
				handleFrames(database, hub, session, frames)

			case <-stallCheck.C:
				// A partial frame that sits unfinished longer than the stall
				// timeout means the sensor stopped mid-frame; drop it and
				// hunt for the next marker.
				decoderMu.Lock()
				if since, ok := decoder.PendingSince(); ok && time.Since(since) > stallTimeout {
					log.Printf("decoder stalled in %s for %v; resetting", decoder.State(), time.Since(since))
					decoder.Reset()
				}
				decoderMu.Unlock()

			case <-ctx.Done():
				log.Printf("decode routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(mux, database, hub, tuning.GetUnits())
		server.SetDecoderStats(func() mmwave.Stats {
			decoderMu.Lock()
			defer decoderMu.Unlock()
			return decoder.Stats()
		})
		httpMux := server.ServeMux()

		mux.AttachAdminRoutes(httpMux)
		database.AttachAdminRoutes(httpMux)

		srv := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	summary, err := database.SummarizeSession(session)
	if err == nil {
		log.Printf("session %s recorded %d frames, %d objects",
			session, summary.FrameCount, summary.ObjectCount)
	}
	log.Printf("Graceful shutdown complete")
}
