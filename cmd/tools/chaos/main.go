// Chaos replays a capture directory into a relay socket while
// injecting faults: dropped, duplicated and reordered messages, bit
// flips and inter-frame garbage. Used to verify that a relay
// resynchronizes, samples out corruption and never wedges on a hostile
// producer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"

	"main/internal/capture"
	"main/internal/chaos"
	"main/pkg/uds"
)

func main() {
	dir := flag.String("dir", "testdata/capture", "input capture directory")
	prefix := flag.String("prefix", "", "capture file prefix (default: cap)")
	socket := flag.String("socket", "", "relay socket path")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "duplicate probability [0-1]")
	corruptRate := flag.Float64("corrupt-rate", 0, "bit-flip probability [0-1]")
	garbageRate := flag.Float64("garbage-rate", 0, "garbage-burst probability [0-1]")
	garbageMax := flag.Int("garbage-max", 256, "max garbage burst length")
	reorderWindow := flag.Int("reorder-window", 1, "reorder window (>=1)")
	noChecksum := flag.Bool("no-checksum", false, "disable capture checksum validation")
	flag.Parse()

	if *socket == "" {
		log.Fatal("missing -socket")
	}

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		CorruptRate:   *corruptRate,
		GarbageRate:   *garbageRate,
		GarbageMaxLen: *garbageMax,
		ReorderWindow: *reorderWindow,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	pb, err := capture.NewPlayback(capture.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		DisableChecksum: *noChecksum,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	client, err := uds.NewClient(*socket)
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}
	conn, err := client.Dial()
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var sent int
	send := func(chunks [][]byte) error {
		for _, chunk := range chunks {
			if _, err := conn.Write(chunk); err != nil {
				return err
			}
			sent++
		}
		return nil
	}

	err = pb.Run(context.Background(), func(_ capture.RecordHeader, msg []byte) error {
		cp := make([]byte, len(msg))
		copy(cp, msg)
		return send(engine.Process(cp))
	})
	if err == nil {
		err = send(engine.Flush())
	}
	if err != nil {
		if _, ok := err.(*net.OpError); ok {
			// A relay is allowed to drop us for pervasive corruption.
			fmt.Printf("connection dropped by relay after %d chunks\n", sent)
			return
		}
		log.Fatalf("chaos run failed: %v", err)
	}
	fmt.Printf("sent %d chunks\n", sent)
}
