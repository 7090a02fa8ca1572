// Blast floods a running relay with framed messages and optionally
// consumes the broadcast side, reporting send/receive counts. Used
// for soak testing and throughput measurement against a live socket.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"main/internal/protocol"
	"main/pkg/uds"
)

func main() {
	socket := flag.String("socket", "", "relay socket path")
	count := flag.Int("count", 100000, "messages to send")
	marker := flag.Int("marker", 25, "domain marker byte")
	payloadLen := flag.Int("payload", 8, "TLV value length per message")
	consume := flag.Bool("consume", false, "also consume the broadcast stream")
	flag.Parse()

	if *socket == "" {
		log.Fatal("missing -socket")
	}

	client, err := uds.NewClient(*socket)
	if err != nil {
		log.Fatalf("client init failed: %v", err)
	}

	var received atomic.Uint64
	if *consume {
		conn, err := client.Dial()
		if err != nil {
			log.Fatalf("consumer dial failed: %v", err)
		}
		defer conn.Close()
		go func() {
			buf := make([]byte, 64<<10)
			framer := protocol.NewFramer(0)
			for {
				n, err := conn.Read(buf)
				if err != nil {
					return
				}
				framer.Feed(buf[:n])
				for {
					if _, ok := framer.Next(); !ok {
						break
					}
					received.Add(1)
				}
			}
		}()
	}

	producer, err := client.Dial()
	if err != nil {
		log.Fatalf("producer dial failed: %v", err)
	}
	defer producer.Close()

	value := make([]byte, *payloadLen)
	payload := protocol.AppendTLV(nil, 1, value)

	start := time.Now()
	msg := make([]byte, 0, protocol.HeaderSize+len(payload))
	for i := 0; i < *count; i++ {
		msg = protocol.AppendMessage(msg[:0], protocol.HeaderFields{
			Domain:    byte(*marker),
			Source:    1,
			Sequence:  uint64(i + 1),
			Timestamp: uint64(time.Now().UnixNano()),
		}, payload)
		if _, err := producer.Write(msg); err != nil {
			log.Fatalf("write failed after %d messages: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	rate := float64(*count) / elapsed.Seconds()
	fmt.Printf("sent %d messages in %s (%.0f msg/s)\n", *count, elapsed, rate)

	if *consume {
		// Give the relay a moment to drain the fan-out.
		time.Sleep(500 * time.Millisecond)
		fmt.Printf("received %d broadcast messages\n", received.Load())
	}
}
