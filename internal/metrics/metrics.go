// Package metrics implements Prometheus metrics for the extraction
// pipeline. The core parsers never touch these; only the pipeline layer
// increments them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PcapPacketsTotal counts captured packets seen in the input file.
	PcapPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tscap_pcap_packets_total",
		Help: "Total number of captured packets read from pcap input",
	})

	// IPv4DatagramsTotal counts valid IPv4 datagrams extracted.
	IPv4DatagramsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tscap_ipv4_datagrams_total",
		Help: "Total number of IPv4 datagrams reconstructed from pcap input",
	})

	// TSPacketsTotal counts transport-stream packets emitted.
	TSPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tscap_ts_packets_total",
		Help: "Total number of transport stream packets extracted",
	})

	// DecapErrorsTotal counts decapsulation framing errors.
	DecapErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tscap_decap_errors_total",
		Help: "Total number of PID decapsulation framing errors",
	})
)
