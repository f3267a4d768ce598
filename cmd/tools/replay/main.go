// Command replay feeds a recorded sensor byte stream through the frame
// decoder and reports what it finds.
//
// The input is either a raw capture of the data UART (the default) or, when
// built with -tags=pcap, a PCAP file whose UDP payloads carry the stream.
//
// Usage:
//
//	go run ./cmd/tools/replay -in capture.bin [flags]
//
// Flags:
//
//	-in        Input file (required)
//	-pcap      Treat input as a PCAP file (requires -tags=pcap build)
//	-udp-port  UDP port to filter on in PCAP mode (default: 4098)
//	-chunk     Bytes fed to the decoder per call in raw mode (default: 4096)
//	-db-path   Record decoded frames to this sqlite database (optional)
//	-v         Print each decoded frame
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/stats"
)

var (
	input    = flag.String("in", "", "Input file (required)")
	usePcap  = flag.Bool("pcap", false, "Treat input as a PCAP file")
	udpPort  = flag.Int("udp-port", 4098, "UDP port to filter on in PCAP mode")
	chunkLen = flag.Int("chunk", 4096, "Bytes fed to the decoder per call in raw mode")
	dbPath   = flag.String("db-path", "", "Record decoded frames to this sqlite database (optional)")
	verbose  = flag.Bool("v", false, "Print each decoded frame")
)

func main() {
	flag.Parse()
	if *input == "" {
		log.Fatal("Error: -in flag is required")
	}

	var chunks [][]byte
	if *usePcap {
		var err error
		chunks, err = readPCAPPayloads(context.Background(), *input, *udpPort)
		if err != nil {
			log.Fatalf("Failed to read PCAP file: %v", err)
		}
	} else {
		data, err := os.ReadFile(*input)
		if err != nil {
			log.Fatalf("Failed to read input file: %v", err)
		}
		for off := 0; off < len(data); off += *chunkLen {
			end := off + *chunkLen
			if end > len(data) {
				end = len(data)
			}
			chunks = append(chunks, data[off:end])
		}
	}

	var record func(mmwave.Frame)
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		session, err := database.StartSession("replay:" + *input)
		if err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
		log.Printf("recording to session %s", session)
		record = func(frame mmwave.Frame) {
			if err := database.RecordFrame(session, frame); err != nil {
				log.Printf("failed to record frame %d: %v", frame.Header.FrameNumber, err)
			}
		}
	}

	decoder := mmwave.NewDecoder(mmwave.Options{})
	var agg stats.Aggregator
	errCount := 0

	for _, chunk := range chunks {
		frames, err := decoder.Ingest(chunk)
		if err != nil {
			errCount++
			if *verbose {
				log.Printf("decode: %v", err)
			}
		}
		for _, frame := range frames {
			agg.AddFrame(frame)
			if record != nil {
				record(frame)
			}
			if *verbose {
				fmt.Printf("frame %d: %d objects, %d unknown TLVs, %d trailing bytes\n",
					frame.Header.FrameNumber, len(frame.Objects),
					len(frame.Unknown), frame.TrailingBytes)
			}
		}
	}

	ds := decoder.Stats()
	fmt.Printf("ingested %d bytes in %d chunks\n", ds.BytesIngested, len(chunks))
	fmt.Printf("decoded %d frames (%d protocol errors, %d bytes dropped, %d overflows)\n",
		ds.FramesDecoded, ds.ProtocolErrors, ds.BytesDropped, ds.Overflows)
	if decoder.Buffered() > 0 {
		fmt.Printf("%d bytes left undecoded in state %s\n", decoder.Buffered(), decoder.State())
	}

	summary := agg.Summary()
	if summary.Count > 0 {
		fmt.Printf("point cloud: %d points, range %.2f-%.2f m (mean %.2f)\n",
			summary.Count, summary.RangeMin, summary.RangeMax, summary.RangeMean)
		fmt.Printf("velocity: mean %.2f m/s, stddev %.2f, p50 %.2f, p95 %.2f\n",
			summary.VelocityMean, summary.VelocityStdDev, summary.VelocityP50, summary.VelocityP95)
	}
	if errCount > 0 {
		fmt.Printf("%d ingest calls reported protocol errors\n", errCount)
	}
}
