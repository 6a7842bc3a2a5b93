// The sniffer command captures live traffic on a game server port and
// prints the frames it sees. When a session's cleartext handshake was
// captured, its seeds key both directions and later frames are decrypted
// before printing.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var (
	device  = flag.String("d", "en0", "Device on which to listen for packets")
	port    = flag.Int("p", 0, "Server port to filter on (0 captures everything)")
	dialectFlag = flag.String("v", "v2", "Dialect of the captured sessions (v1, v2, v3, v3b)")
)

func main() {
	flag.Parse()

	deviceIP := getDeviceIP()
	if deviceIP == "" {
		exit("invalid device: %s", *device)
	}

	handle, err := pcap.OpenLive(*device, math.MaxInt32, false, pcap.BlockForever)
	if err != nil {
		exit("error opening handle: %v", err)
	}
	filter := "tcp"
	if *port != 0 {
		filter = fmt.Sprintf("tcp and port %d", *port)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		exit("error setting filter: %v", err)
	}

	sniffer := newSniffer(*dialectFlag)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		transport := packet.TransportLayer()
		if transport == nil {
			continue
		}
		tcp, ok := transport.(*layers.TCP)
		if !ok || len(tcp.Payload) == 0 {
			continue
		}

		flow := transport.TransportFlow()
		sniffer.feed(flow.String(), int(tcp.DstPort) == *port, tcp.Payload)
	}
}

func exit(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func getDeviceIP() string {
	devs, _ := pcap.FindAllDevs()
	for _, dev := range devs {
		if dev.Name == *device {
			for _, address := range dev.Addresses {
				return address.IP.String()
			}
		}
	}
	return ""
}
