//go:build pcap
// +build pcap

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// readPCAPPayloads extracts the UDP payloads carrying the sensor stream from
// a PCAP file, in capture order.
func readPCAPPayloads(ctx context.Context, pcapFile string, udpPort int) ([][]byte, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return nil, fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	log.Printf("PCAP BPF filter set: %s", filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	var payloads [][]byte
	for {
		select {
		case <-ctx.Done():
			return payloads, ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				return payloads, nil
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			payload := make([]byte, len(udp.Payload))
			copy(payload, udp.Payload)
			payloads = append(payloads, payload)
		}
	}
}
