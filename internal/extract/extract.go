// Package extract drives the pipeline from a capture file to a transport
// stream: it filters UDP datagrams, locates the TS packets inside them and
// optionally removes a PID encapsulation layer.
package extract

import (
	"net/netip"

	"firestige.xyz/tscap/internal/ipv4"
	"firestige.xyz/tscap/internal/log"
	"firestige.xyz/tscap/internal/metrics"
	"firestige.xyz/tscap/internal/pcap"
	"firestige.xyz/tscap/internal/ts"
)

// Options selects which UDP stream to extract and how to post-process it.
type Options struct {
	// Source filters datagrams by source address and/or port. An invalid
	// address means any address, a zero port means any port.
	Source netip.AddrPort

	// Destination filters datagrams by destination address and/or port.
	// When either part is unset, the extractor locks onto the destination
	// of the first matching datagram that carries TS packets and then only
	// accepts that destination.
	Destination netip.AddrPort

	// CarrierPID enables decapsulation of the given PID when it is a
	// valid non-null PID.
	CarrierPID ts.PID

	// KeepFillers emits the null packets produced by decapsulation
	// instead of dropping them, preserving the carrier bitrate.
	KeepFillers bool
}

// Extractor reads a capture file and yields transport-stream packets with
// timestamps relative to the first captured datagram.
type Extractor struct {
	reader *pcap.Reader
	opt    Options
	log    log.Logger

	decap *ts.Decapsulator

	dst       netip.AddrPort
	dstLocked bool

	pkt       ipv4.Packet
	queue     []ts.Packet
	queueTime int64

	baseTime  int64
	haveBase  bool
	lastCount uint64
}

// NewExtractor wraps a reader. The reader stays owned by the caller and
// must already be open.
func NewExtractor(r *pcap.Reader, opt Options, logger log.Logger) *Extractor {
	if logger == nil {
		logger = log.Nop()
	}
	e := &Extractor{reader: r, opt: opt, log: logger}
	if opt.Destination.Addr().IsValid() && opt.Destination.Port() != 0 {
		e.dst = opt.Destination
		e.dstLocked = true
	}
	if opt.CarrierPID < ts.PIDNull {
		e.decap = ts.NewDecapsulator(opt.CarrierPID, logger)
	}
	return e
}

// Destination returns the destination the extractor locked onto, or the
// configured one. It is only fully meaningful after the first packet.
func (e *Extractor) Destination() netip.AddrPort { return e.dst }

// Next returns the next transport-stream packet and its timestamp in
// microseconds relative to the first matching datagram (-1 when the
// capture carries no timestamps). It returns io.EOF at the end of the
// capture and sticks to any reader error.
func (e *Extractor) Next() (ts.Packet, int64, error) {
	for len(e.queue) == 0 {
		if err := e.fill(); err != nil {
			return ts.Packet{}, 0, err
		}
	}
	pkt := e.queue[0]
	e.queue = e.queue[1:]
	metrics.TSPacketsTotal.Inc()
	return pkt, e.queueTime, nil
}

// fill reads datagrams until one contributes at least one packet to the
// queue or the reader fails.
func (e *Extractor) fill() (err error) {
	for {
		var tstamp int64
		tstamp, err = e.reader.ReadIPv4(&e.pkt)
		if count := e.reader.PacketCount(); count > e.lastCount {
			metrics.PcapPacketsTotal.Add(float64(count - e.lastCount))
			e.lastCount = count
		}
		if err != nil {
			return err
		}
		metrics.IPv4DatagramsTotal.Inc()

		if !e.matchDatagram() {
			continue
		}
		data := e.pkt.ProtocolData()
		start, count := locate(data)
		if count == 0 {
			continue
		}

		// First usable datagram pins the destination when the filter
		// left it open.
		if !e.dstLocked {
			e.dst = netip.AddrPortFrom(e.pkt.DestinationAddress(), e.pkt.DestinationPort())
			e.dstLocked = true
			e.log.Infof("extracting stream to %s", e.dst)
		}

		if tstamp >= 0 {
			if !e.haveBase {
				e.baseTime = tstamp
				e.haveBase = true
			}
			e.queueTime = tstamp - e.baseTime
		} else {
			e.queueTime = -1
		}

		e.enqueue(data[start : start+count*ts.PacketSize])
		if len(e.queue) > 0 {
			return nil
		}
	}
}

// matchDatagram applies the UDP and address filters to the current packet.
func (e *Extractor) matchDatagram() bool {
	if !e.pkt.IsUDP() {
		return false
	}
	src, dst := e.opt.Source, e.opt.Destination
	if src.Addr().IsValid() && e.pkt.SourceAddress() != src.Addr() {
		return false
	}
	if src.Port() != 0 && e.pkt.SourcePort() != src.Port() {
		return false
	}
	if e.dstLocked {
		return e.pkt.DestinationAddress() == e.dst.Addr() && e.pkt.DestinationPort() == e.dst.Port()
	}
	if dst.Addr().IsValid() && e.pkt.DestinationAddress() != dst.Addr() {
		return false
	}
	if dst.Port() != 0 && e.pkt.DestinationPort() != dst.Port() {
		return false
	}
	return true
}

// enqueue pushes the packets of one datagram through the optional
// decapsulation stage into the output queue.
func (e *Extractor) enqueue(data []byte) {
	for off := 0; off+ts.PacketSize <= len(data); off += ts.PacketSize {
		var pkt ts.Packet
		copy(pkt[:], data[off:off+ts.PacketSize])

		if e.decap == nil {
			e.queue = append(e.queue, pkt)
			continue
		}
		res, err := e.decap.Process(&pkt)
		if err != nil {
			metrics.DecapErrorsTotal.Inc()
			e.log.WithError(err).Warnf("decapsulation error on PID 0x%04X", uint16(e.opt.CarrierPID))
		}
		if res != ts.ResultFiller || e.opt.KeepFillers {
			e.queue = append(e.queue, pkt)
		}
	}
}

// locate finds the run of transport-stream packets inside a UDP payload:
// the first offset where a sync byte repeats every 188 bytes through the
// end of the payload. A trailing partial packet disqualifies the datagram.
func locate(data []byte) (start, count int) {
	for start = 0; start+ts.PacketSize <= len(data); start++ {
		if data[start] != ts.SyncByte {
			continue
		}
		if (len(data)-start)%ts.PacketSize != 0 {
			continue
		}
		n := 0
		aligned := true
		for off := start; off < len(data); off += ts.PacketSize {
			if data[off] != ts.SyncByte {
				aligned = false
				break
			}
			n++
		}
		if aligned {
			return start, n
		}
	}
	return 0, 0
}
