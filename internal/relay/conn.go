package relay

import (
	"net"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/protocol"
)

// handleConn owns the full lifecycle of one accepted peer. The read
// and write sides run as independent goroutines that never wait on
// each other; whichever terminates first tears the connection down.
func (r *Relay) handleConn(conn *net.UnixConn, id ConnID) {
	defer r.wg.Done()

	sub := r.hub.Subscribe(id)
	r.registry.Store(id, &connEntry{conn: conn, establishedAt: time.Now()})
	r.metrics.ConnOpened()
	r.logic.OnConnect(id)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		r.writeLoop(conn, sub, id)
		// A dead write side must also stop the read side.
		_ = conn.Close()
	}()

	r.readLoop(conn, id)

	// Disconnect detected on read implies the write side stops too.
	_ = conn.Close()
	r.hub.Unsubscribe(id)
	<-writeDone

	r.registry.Delete(id)
	r.metrics.ConnClosed()
	logs.Infof("relay[%s] connection %d closed", r.logic.Identity(), id)
}

// readLoop reads chunks, reassembles message boundaries and forwards
// accepted messages to the hub. Returns on read error, EOF or
// pervasive stream corruption.
func (r *Relay) readLoop(conn *net.UnixConn, id ConnID) {
	buf := make([]byte, r.cfg.ReadBufferSize)
	framer := protocol.NewFramer(r.cfg.MaxPayload)
	var reportedGarbage, reportedResyncs uint64

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		framer.Feed(buf[:n])
		for {
			msg, ok := framer.Next()
			if !ok {
				break
			}
			r.process(msg, id)
		}
		if rs := framer.Resyncs(); rs > reportedResyncs {
			// Count every garbage run, not just one per read chunk.
			r.metrics.AddMalformed(rs - reportedResyncs)
			reportedResyncs = rs
		}
		if g := framer.GarbageBytes(); g > reportedGarbage {
			r.metrics.AddResyncBytes(g - reportedGarbage)
			reportedGarbage = g
			if g > r.cfg.MaxGarbageBytes {
				// One bad message is tolerated; a stream this far out
				// of frame is a connection-level failure.
				logs.Warnf("relay[%s] connection %d dropped: %d bytes of unframeable data",
					r.logic.Identity(), id, g)
				return
			}
			logs.Debugf("relay[%s] connection %d resynced past garbage (total %d bytes)",
				r.logic.Identity(), id, g)
		}
	}
}

// process applies validation and the domain predicate to one complete
// message, then publishes the raw bytes. msg borrows the framer buffer
// and is copied before it escapes.
func (r *Relay) process(msg []byte, from ConnID) {
	var start time.Time
	sampled := r.sampler.hit()
	if sampled {
		start = time.Now()
	}

	h := protocol.Header(msg[:protocol.HeaderSize])
	payload := msg[protocol.HeaderSize:]

	if sampled {
		r.metrics.IncChecksumSampled()
		if err := protocol.VerifyChecksum(h, payload); err != nil {
			r.metrics.IncChecksumFailed()
			logs.Warnf("relay[%s] checksum mismatch on connection %d seq %d",
				r.logic.Identity(), from, h.Sequence())
			if r.cfg.StrictChecksum {
				return
			}
		}
	}

	if !r.logic.ShouldForward(h) {
		r.metrics.IncFiltered()
		return
	}
	if r.inspector != nil {
		if err := r.inspector.Inspect(h, payload); err != nil {
			r.metrics.IncMalformed()
			logs.Debugf("relay[%s] rejected message from connection %d: %v",
				r.logic.Identity(), from, err)
			return
		}
	}

	out := make([]byte, len(msg))
	copy(out, msg)
	r.hub.Publish(out, from)
	r.metrics.IncForwarded()

	if sampled {
		r.metrics.ObserveForward(time.Since(start))
	}
}

// writeLoop drains the subscription into the socket. Returns on write
// error or once the subscription is closed.
func (r *Relay) writeLoop(conn *net.UnixConn, sub *Subscription, id ConnID) {
	for {
		msg, ok := sub.Recv()
		if !ok {
			return
		}
		if _, err := conn.Write(msg); err != nil {
			logs.Debugf("relay[%s] write to connection %d failed: %v",
				r.logic.Identity(), id, err)
			return
		}
	}
}
