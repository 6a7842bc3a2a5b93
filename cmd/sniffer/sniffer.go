package main

import (
	"encoding/binary"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
)

// stream tracks one direction of one captured TCP session.
type stream struct {
	cipher  encryption.Cipher
	pending []byte
}

// sniffer reassembles captured payloads into frames. The cleartext
// handshake is recognized on the fly and used to key both directions, the
// same way a real client would.
type sniffer struct {
	dia     dialect.Dialect
	streams map[string]*stream
}

func newSniffer(dialectName string) *sniffer {
	d, err := dialect.Parse(dialectName)
	if err != nil {
		exit("unknown dialect %s", dialectName)
	}
	if d == dialect.V4 {
		exit("the v4 dialect cannot be sniffed without its private keys")
	}
	return &sniffer{dia: d, streams: make(map[string]*stream)}
}

func (s *sniffer) feed(flowKey string, toServer bool, payload []byte) {
	st, ok := s.streams[flowKey]
	if !ok {
		st = &stream{}
		s.streams[flowKey] = st
	}
	st.pending = append(st.pending, payload...)

	headerSize := s.dia.HeaderSize()
	for len(st.pending) >= headerSize {
		header := make([]byte, headerSize)
		copy(header, st.pending)
		if st.cipher != nil {
			if err := st.cipher.Decrypt(header, false); err != nil {
				fmt.Printf("%s: %v\n", flowKey, err)
				st.pending = nil
				return
			}
		}

		size := int(binary.LittleEndian.Uint16(header[2:4]))
		if s.dia.BigEndian() {
			size = int(binary.BigEndian.Uint16(header[2:4]))
		}
		if size < headerSize || size > len(st.pending) {
			return // wait for more data (or give up on garbage)
		}

		frame := st.pending[:size]
		if st.cipher != nil {
			_ = st.cipher.Decrypt(frame, true)
		}
		st.pending = st.pending[size:]

		s.printFrame(flowKey, toServer, frame)

		// A cleartext welcome keys every later frame in both directions.
		if st.cipher == nil && len(frame) >= headerSize+8 {
			switch frame[0] {
			case 0x02, 0x17, 0x91:
				serverKey := binary.LittleEndian.Uint32(frame[headerSize:])
				clientKey := binary.LittleEndian.Uint32(frame[headerSize+4:])
				s.installCiphers(flowKey, serverKey, clientKey)
			}
		}
	}
}

// installCiphers keys this stream (server→client) and its reverse.
func (s *sniffer) installCiphers(flowKey string, serverKey, clientKey uint32) {
	build := func(seed uint32) encryption.Cipher {
		if s.dia == dialect.V1 {
			return encryption.NewV1Cipher(seed)
		}
		return encryption.NewV2Cipher(seed)
	}

	if st, ok := s.streams[flowKey]; ok {
		st.cipher = build(serverKey)
	}
	s.streams[reverseFlow(flowKey)] = &stream{cipher: build(clientKey)}
	fmt.Printf("%s: handshake seen, ciphers installed\n", flowKey)
}

func reverseFlow(flowKey string) string {
	for i := 0; i < len(flowKey)-1; i++ {
		if flowKey[i] == '-' && flowKey[i+1] == '>' {
			return flowKey[i+2:] + "->" + flowKey[:i]
		}
	}
	return flowKey
}

func (s *sniffer) printFrame(flowKey string, toServer bool, frame []byte) {
	direction := "server->client"
	if toServer {
		direction = "client->server"
	}
	fmt.Printf("%s (%s): opcode %02X, %d bytes\n", flowKey, direction, frame[0], len(frame))
	spew.Dump(frame)
}
