package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tscap/internal/ipv4"
	"firestige.xyz/tscap/internal/log"
	"firestige.xyz/tscap/internal/pcap"
)

var infoYAML bool

var infoCmd = &cobra.Command{
	Use:   "info [capture-file]",
	Short: "Show statistics about a capture file",
	Long: `Info scans a pcap or pcap-ng file and reports its format, capture
interfaces and packet statistics.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if err := runInfo(path); err != nil {
			exitWithError("info failed", err)
		}
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoYAML, "yaml", false, "output statistics as YAML")
}

// captureStats is the info report, shaped for YAML output.
type captureStats struct {
	File            string          `yaml:"file"`
	Format          string          `yaml:"format"`
	Version         string          `yaml:"version"`
	BigEndian       bool            `yaml:"big_endian"`
	FileSize        uint64          `yaml:"file_size"`
	Packets         uint64          `yaml:"packets"`
	PacketsBytes    uint64          `yaml:"packets_bytes"`
	IPv4Packets     uint64          `yaml:"ipv4_packets"`
	IPv4Bytes       uint64          `yaml:"ipv4_bytes"`
	UDPPackets      uint64          `yaml:"udp_packets"`
	TCPPackets      uint64          `yaml:"tcp_packets"`
	FirstTimestamp  int64           `yaml:"first_timestamp_us"`
	LastTimestamp   int64           `yaml:"last_timestamp_us"`
	Interfaces      []interfaceInfo `yaml:"interfaces,omitempty"`
}

type interfaceInfo struct {
	LinkType  uint16 `yaml:"link_type"`
	TimeUnits uint64 `yaml:"time_units_per_second"`
}

func runInfo(path string) error {
	reader, err := pcap.Open(path, log.GetLogger())
	if err != nil {
		return err
	}
	defer reader.Close()

	var pkt ipv4.Packet
	var udp, tcp uint64
	for {
		_, err := reader.ReadIPv4(&pkt)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if pkt.IsUDP() {
			udp++
		} else if pkt.IsTCP() {
			tcp++
		}
	}

	name := path
	if name == "" || name == "-" {
		name = "standard input"
	}
	major, minor := reader.Version()
	stats := captureStats{
		File:           name,
		Format:         reader.FormatName(),
		Version:        fmt.Sprintf("%d.%d", major, minor),
		BigEndian:      reader.BigEndian(),
		FileSize:       reader.FileSize(),
		Packets:        reader.PacketCount(),
		PacketsBytes:   reader.PacketsSize(),
		IPv4Packets:    reader.IPv4PacketCount(),
		IPv4Bytes:      reader.IPv4PacketsSize(),
		UDPPackets:     udp,
		TCPPackets:     tcp,
		FirstTimestamp: reader.FirstTimestamp(),
		LastTimestamp:  reader.LastTimestamp(),
	}
	for _, ifd := range reader.Interfaces() {
		stats.Interfaces = append(stats.Interfaces, interfaceInfo{
			LinkType:  ifd.LinkType,
			TimeUnits: ifd.TimeUnits,
		})
	}

	if infoYAML {
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(&stats)
	}

	fmt.Printf("File:            %s\n", stats.File)
	fmt.Printf("Format:          %s %s\n", stats.Format, stats.Version)
	fmt.Printf("File size:       %d bytes\n", stats.FileSize)
	fmt.Printf("Packets:         %d (%d bytes)\n", stats.Packets, stats.PacketsBytes)
	fmt.Printf("IPv4 packets:    %d (%d bytes)\n", stats.IPv4Packets, stats.IPv4Bytes)
	fmt.Printf("UDP packets:     %d\n", stats.UDPPackets)
	fmt.Printf("TCP packets:     %d\n", stats.TCPPackets)
	if stats.FirstTimestamp >= 0 {
		fmt.Printf("Time span:       %d us\n", stats.LastTimestamp-stats.FirstTimestamp)
	}
	for i, ifd := range stats.Interfaces {
		fmt.Printf("Interface %d:     link type %d, %d time units/s\n", i, ifd.LinkType, ifd.TimeUnits)
	}
	return nil
}
