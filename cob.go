package eposcan

// Protocol tags a COB with the CANopen service that produced it. The
// function-code half of the COB-ID is never stored here; it is recovered
// from the connection set at encode/decode time (spec section 3).
type Protocol int

const (
	ProtocolSync Protocol = iota
	ProtocolEmcy
	ProtocolTime
	ProtocolNMT
	ProtocolNMTEC
	ProtocolLSS
	ProtocolSDO
	ProtocolPDO
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSync:
		return "SYNC"
	case ProtocolEmcy:
		return "EMCY"
	case ProtocolTime:
		return "TIME"
	case ProtocolNMT:
		return "NMT"
	case ProtocolNMTEC:
		return "NMT-EC"
	case ProtocolLSS:
		return "LSS"
	case ProtocolSDO:
		return "SDO"
	case ProtocolPDO:
		return "PDO"
	default:
		return "UNKNOWN"
	}
}

// MaxNodeID is the largest 7-bit CANopen node identifier. 0 is broadcast.
const MaxNodeID uint8 = 0x7F

// COB is a CANopen communication object: a node, a protocol tag, an RTR
// flag and up to 8 bytes of payload.
type COB struct {
	Protocol Protocol
	NodeID   uint8
	RTR      bool
	Data     [MaxDataLength]byte
	Length   uint8
}

// NewCOB builds a COB, truncating and zero-padding data like NewFrame.
func NewCOB(protocol Protocol, nodeID uint8, rtr bool, data []byte, length int) COB {
	if length > MaxDataLength {
		length = MaxDataLength
	}
	var c COB
	c.Protocol = protocol
	c.NodeID = nodeID & MaxNodeID
	c.RTR = rtr
	copy(c.Data[:length], data[:length])
	c.Length = uint8(length)
	return c
}

func (c COB) String() string {
	f := Frame{ID: uint16(c.NodeID), RTR: c.RTR, Data: c.Data, Length: c.Length}
	return f.String()
}

// --- NMT ---

// NMTBuildInit builds the broadcast NMT command COB: data = [cs, nodeID].
// NMT is always addressed to node 0 on the wire (broadcast), per spec 4.1.
func NMTBuildInit(cs uint8, nodeID uint8) COB {
	return NewCOB(ProtocolNMT, 0, false, []byte{cs, nodeID}, 2)
}

// NMTCommand returns the command specifier byte of an NMT COB, or 0 if the
// COB is not an NMT COB.
func (c COB) NMTCommand() uint8 {
	if c.Protocol != ProtocolNMT || c.Length < 1 {
		return 0
	}
	return c.Data[0]
}

// NMTTarget returns the targeted node id of an NMT COB, or 0 otherwise.
func (c COB) NMTTarget() uint8 {
	if c.Protocol != ProtocolNMT || c.Length < 2 {
		return 0
	}
	return c.Data[1]
}

// NMTECState returns the reported state byte of an NMT error-control
// (heartbeat/bootup) COB, or 0 if the COB is not NMT-EC.
func (c COB) NMTECState() uint8 {
	if c.Protocol != ProtocolNMTEC || c.Length < 1 {
		return 0
	}
	return c.Data[0]
}

// --- EMCY ---

// EMCYCode returns the emergency error code, or 0 if not an EMCY COB.
func (c COB) EMCYCode() uint16 {
	if c.Protocol != ProtocolEmcy || c.Length < 2 {
		return 0
	}
	return uint16(c.Data[0])<<8 | uint16(c.Data[1])
}

// EMCYRegister returns the error register byte, or 0 if not an EMCY COB.
func (c COB) EMCYRegister() uint8 {
	if c.Protocol != ProtocolEmcy || c.Length < 3 {
		return 0
	}
	return c.Data[2]
}

// EMCYVendorCode returns the vendor-specific error field (up to 5 bytes).
func (c COB) EMCYVendorCode() []byte {
	if c.Protocol != ProtocolEmcy || c.Length <= 3 {
		return nil
	}
	return c.Data[3:c.Length]
}

// --- SDO ---

// SDOTransferMode tags whether an SDO transfer is expedited or segmented.
type SDOTransferMode uint8

const (
	SDOTransferSegmented SDOTransferMode = 0
	SDOTransferExpedited SDOTransferMode = 1
)

// Client command specifiers, bits 7..5 of the first SDO payload byte.
const (
	SDOCCSDownloadSegment uint8 = 0
	SDOCCSDownloadInit    uint8 = 1
	SDOCCSUploadInit      uint8 = 2
	SDOCCSUploadSegment   uint8 = 3
	SDOCCSAbort           uint8 = 4
)

// SDOBuildSend builds a send-side SDO COB. When transfer is expedited the
// unused-byte count (bits 3..2) is derived as 4-len, per spec 4.1.
func SDOBuildSend(nodeID uint8, ccs uint8, transfer SDOTransferMode, index uint16, subindex uint8, data []byte) COB {
	var payload [8]byte
	payload[0] = ccs << 5
	if transfer == SDOTransferExpedited {
		payload[0] |= 0x02
		unused := 4 - len(data)
		if unused < 0 {
			unused = 0
		}
		payload[0] |= uint8(unused) << 2
	}
	payload[1] = byte(index >> 8)
	payload[2] = byte(index)
	payload[3] = subindex
	n := copy(payload[4:8], data)
	return NewCOB(ProtocolSDO, nodeID, false, payload[:4+n], 4+n)
}

// SDOCCS returns the client command specifier of an SDO COB, or -1 if the
// COB is not an SDO COB.
func (c COB) SDOCCS() int {
	if c.Protocol != ProtocolSDO || c.Length < 1 {
		return -1
	}
	return int(c.Data[0] >> 5)
}

// SDOTransfer returns the transfer mode bit of an SDO COB, or -1 if the
// COB is not an SDO COB.
func (c COB) SDOTransfer() int {
	if c.Protocol != ProtocolSDO || c.Length < 1 {
		return -1
	}
	return int((c.Data[0] >> 1) & 0x01)
}

// SDOIndex returns the object dictionary index of an SDO COB, or 0.
func (c COB) SDOIndex() uint16 {
	if c.Protocol != ProtocolSDO || c.Length < 3 {
		return 0
	}
	return uint16(c.Data[1])<<8 | uint16(c.Data[2])
}

// SDOSubindex returns the object dictionary subindex of an SDO COB, or 0.
func (c COB) SDOSubindex() uint8 {
	if c.Protocol != ProtocolSDO || c.Length < 4 {
		return 0
	}
	return c.Data[3]
}
