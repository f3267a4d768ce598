//go:build !pcap
// +build !pcap

package main

import (
	"context"
	"fmt"
)

// readPCAPPayloads is a stub when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file reading.
func readPCAPPayloads(ctx context.Context, pcapFile string, udpPort int) ([][]byte, error) {
	return nil, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")
}
