// Replay records a relay's broadcast stream to capture segments and
// plays captures back into a socket. Three modes:
//
//	-record   consume a live relay and write capture segments
//	-dump     print a capture directory without touching a socket
//	(default) replay a capture directory into a relay socket
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"main/internal/capture"
	"main/internal/protocol"
	"main/pkg/uds"
)

func main() {
	dir := flag.String("dir", "testdata/capture", "capture directory")
	prefix := flag.String("prefix", "", "capture file prefix (default: cap)")
	socket := flag.String("socket", "", "relay socket path")
	speed := flag.Float64("speed", 0, "playback speed (1=original pacing, 0=flat out)")
	noChecksum := flag.Bool("no-checksum", false, "disable capture checksum validation")
	record := flag.Bool("record", false, "record the relay broadcast stream")
	dump := flag.Bool("dump", false, "print captured messages and exit")
	flag.Parse()

	switch {
	case *dump:
		runDump(*dir, *prefix, *noChecksum)
	case *record:
		runRecord(*dir, *prefix, *socket)
	default:
		runReplay(*dir, *prefix, *socket, *speed, *noChecksum)
	}
}

func runDump(dir, prefix string, noChecksum bool) {
	pb, err := capture.NewPlayback(capture.PlaybackConfig{
		Dir:             dir,
		FilePrefix:      prefix,
		DisableChecksum: noChecksum,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	var index int
	err = pb.Run(context.Background(), func(rec capture.RecordHeader, msg []byte) error {
		index++
		line := fmt.Sprintf("%06d seq=%d captured_at=%d len=%d", index, rec.Seq, rec.CapturedAt, len(msg))
		if h, err := protocol.ParseHeader(msg); err == nil {
			line += fmt.Sprintf(" marker=%d msg_seq=%d payload=%d", h.Domain(), h.Sequence(), h.PayloadSize())
		} else {
			line += " (unparseable)"
		}
		fmt.Println(line)
		return nil
	})
	if err != nil {
		log.Fatalf("dump failed: %v", err)
	}
}

func runRecord(dir, prefix, socket string) {
	if socket == "" {
		log.Fatal("missing -socket")
	}
	client, err := uds.NewClient(socket)
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}
	conn, err := client.Dial()
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	cfg := capture.DefaultConfig(dir)
	if prefix != "" {
		cfg.FilePrefix = prefix
	}
	writer, err := capture.NewWriter(cfg)
	if err != nil {
		log.Fatalf("writer init failed: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("writer start failed: %v", err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var recorded, dropped uint64
	buf := make([]byte, 64<<10)
	framer := protocol.NewFramer(0)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			break
		}
		framer.Feed(buf[:n])
		for {
			msg, ok := framer.Next()
			if !ok {
				break
			}
			if err := writer.TryAppend(msg); err != nil {
				dropped++
				continue
			}
			recorded++
		}
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("writer close failed: %v", err)
	}
	fmt.Printf("recorded %d messages (%d dropped)\n", recorded, dropped)
}

func runReplay(dir, prefix, socket string, speed float64, noChecksum bool) {
	if socket == "" {
		log.Fatal("missing -socket")
	}
	client, err := uds.NewClient(socket)
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}
	conn, err := client.Dial()
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	pb, err := capture.NewPlayback(capture.PlaybackConfig{
		Dir:             dir,
		FilePrefix:      prefix,
		Speed:           speed,
		DisableChecksum: noChecksum,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sent int
	err = pb.Run(ctx, func(_ capture.RecordHeader, msg []byte) error {
		if _, err := conn.Write(msg); err != nil {
			return err
		}
		sent++
		return nil
	})
	if err != nil {
		log.Fatalf("replay failed after %d messages: %v", sent, err)
	}
	fmt.Printf("replayed %d messages\n", sent)
}
