package tlsdriver

// QuicTPExtensionType is the TLS extension type carrying QUIC transport
// parameters (§4.4, §6): 0xffa5, host byte order.
const QuicTPExtensionType = 0xffa5

// AlpnExtensionType is the standard ALPN extension type (§6).
const AlpnExtensionType = 0x0010

// QuicTlsTPHeaderSize is the number of bytes the driver itself writes at
// the front of the caller-supplied local transport-parameter buffer before
// the caller's payload begins (§4.4: "The local blob begins at offset
// QuicTlsTPHeaderSize within the caller-supplied buffer; the driver writes
// the header."). This core writes no additional framing beyond the raw
// transport-parameter bytes handed to crypto/tls, so the header is empty;
// the constant is kept at zero for callers written against the original
// C ABI's offset convention.
const QuicTlsTPHeaderSize = 0

// AlpnFindInList scans offered (the client-offered list, in order) and
// returns the first entry that also appears in wanted (the values the
// caller itself supports), per §4.4: "the server picks the first
// client-offered value it also offers."
func AlpnFindInList(offered, wanted []string) (string, bool) {
	wantedSet := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		wantedSet[w] = struct{}{}
	}
	for _, o := range offered {
		if _, ok := wantedSet[o]; ok {
			return o, true
		}
	}
	return "", false
}

// tlsHandshakeHeaderSize is the length of a TLS record-layer handshake
// message header: 1-byte type, 3-byte big-endian length.
const tlsHandshakeHeaderSize = 4

// CompleteMessagesLength walks a buffer of concatenated
// `tlsType[1] || length[3] || body` TLS handshake messages and returns the
// length of the longest complete-message prefix (§4.4). Callers must
// truncate their input to this length before submitting it to ProcessData,
// since the driver only accepts whole TLS-record-layer messages at the
// Initial/Handshake epochs.
func CompleteMessagesLength(buf []byte) int {
	total := 0
	for {
		remaining := buf[total:]
		if len(remaining) < tlsHandshakeHeaderSize {
			return total
		}
		bodyLen := int(remaining[1])<<16 | int(remaining[2])<<8 | int(remaining[3])
		msgLen := tlsHandshakeHeaderSize + bodyLen
		if msgLen > len(remaining) {
			return total
		}
		total += msgLen
	}
}
