package cmd

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tscap/internal/config"
	"firestige.xyz/tscap/internal/extract"
	"firestige.xyz/tscap/internal/log"
	"firestige.xyz/tscap/internal/pcap"
)

var (
	extractSource      string
	extractDestination string
	extractPID         int
	extractKeepFillers bool
	extractOutput      string
)

var extractCmd = &cobra.Command{
	Use:   "extract [capture-file]",
	Short: "Extract a transport stream from a capture file",
	Long: `Extract reads a pcap or pcap-ng file, selects one UDP stream and writes
the raw 188-byte transport stream packets it carries. When the destination
filter is incomplete the first stream found in the file is used.

Use "-" (or no argument) to read the capture from standard input.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if err := runExtract(path); err != nil {
			exitWithError("extract failed", err)
		}
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSource, "source", "",
		"source filter: addr, addr:port or :port")
	extractCmd.Flags().StringVar(&extractDestination, "destination", "",
		"destination filter: addr, addr:port or :port")
	extractCmd.Flags().IntVar(&extractPID, "pid", -1,
		"carrier PID to decapsulate (-1 = no decapsulation)")
	extractCmd.Flags().BoolVar(&extractKeepFillers, "keep-fillers", false,
		"keep null packets produced by decapsulation")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "-",
		"output file for the transport stream (- = stdout)")
}

func runExtract(path string) error {
	logger := log.GetLogger()

	// CLI flags override the config file.
	ecfg := cfg.Extract
	if extractSource != "" {
		ecfg.Source = extractSource
	}
	if extractDestination != "" {
		ecfg.Destination = extractDestination
	}
	if extractPID >= 0 {
		ecfg.CarrierPID = extractPID
	}
	if extractKeepFillers {
		ecfg.KeepFillers = true
	}

	src, err := config.ParseAddrPort(ecfg.Source)
	if err != nil {
		return err
	}
	dst, err := config.ParseAddrPort(ecfg.Destination)
	if err != nil {
		return err
	}

	reader, err := pcap.Open(path, logger)
	if err != nil {
		return err
	}
	defer reader.Close()

	var out io.Writer
	if extractOutput == "" || extractOutput == "-" {
		out = os.Stdout
	} else {
		f, err := os.Create(extractOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	ext := extract.NewExtractor(reader, extract.Options{
		Source:      src,
		Destination: dst,
		CarrierPID:  ecfg.Carrier(),
		KeepFillers: ecfg.KeepFillers,
	}, logger)

	var count uint64
	for {
		pkt, _, err := ext.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(pkt[:]); err != nil {
			return err
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"packets":     count,
		"destination": ext.Destination().String(),
	}).Info("extraction complete")
	return nil
}
