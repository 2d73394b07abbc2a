package eposcan

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Service identifies a CANopen service a Connection binds to a COB-ID
// range. This is a coarser tag than Protocol: PDO1..PDO4 are distinct
// services that all carry ProtocolPDO COBs.
type Service int

const (
	ServiceNMT Service = iota
	ServiceSync
	ServiceEmcy
	ServiceTime
	ServicePDO1
	ServicePDO2
	ServicePDO3
	ServicePDO4
	ServiceSDO
	ServiceNMTEC
	ServiceLSS
)

func (s Service) String() string {
	names := [...]string{"NMT", "SYNC", "EMCY", "TIME", "PDO1", "PDO2", "PDO3", "PDO4", "SDO", "NMT-EC", "LSS"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// Direction is send or receive, from the host's point of view.
type Direction int

const (
	DirectionSend Direction = iota
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "recv"
}

// Connection binds a (service, direction) pair to a COB-ID range
// [Base, Base+Range) and the protocol carried on that range.
type Connection struct {
	Service   Service
	Direction Direction
	Protocol  Protocol
	Base      uint16
	Range     uint16
}

func (c Connection) String() string {
	return fmt.Sprintf("%-6s %-4s base %03x range %d", c.Service, c.Direction, c.Base, c.Range)
}

// DefaultConnections is the predefined connection set of spec section 3.
var DefaultConnections = []Connection{
	{ServiceNMT, DirectionReceive, ProtocolNMT, 0x000, 1},
	{ServiceSync, DirectionReceive, ProtocolSync, 0x080, 1},
	{ServiceEmcy, DirectionSend, ProtocolEmcy, 0x080, 128},
	{ServiceTime, DirectionReceive, ProtocolTime, 0x100, 1},
	{ServicePDO1, DirectionSend, ProtocolPDO, 0x180, 128},
	{ServicePDO1, DirectionReceive, ProtocolPDO, 0x200, 128},
	{ServicePDO2, DirectionSend, ProtocolPDO, 0x280, 128},
	{ServicePDO2, DirectionReceive, ProtocolPDO, 0x300, 128},
	{ServicePDO3, DirectionSend, ProtocolPDO, 0x380, 128},
	{ServicePDO3, DirectionReceive, ProtocolPDO, 0x400, 128},
	{ServicePDO4, DirectionSend, ProtocolPDO, 0x480, 128},
	{ServicePDO4, DirectionReceive, ProtocolPDO, 0x500, 128},
	{ServiceSDO, DirectionSend, ProtocolSDO, 0x580, 128},
	{ServiceSDO, DirectionReceive, ProtocolSDO, 0x600, 128},
	{ServiceNMTEC, DirectionSend, ProtocolNMTEC, 0x700, 128},
	{ServiceLSS, DirectionSend, ProtocolLSS, 0x7e4, 1},
	{ServiceLSS, DirectionReceive, ProtocolLSS, 0x7e5, 1},
}

// ConnectionSet is an ordered set of Connections. Each Device owns an
// independent copy so application-added connections never leak across
// devices (spec section 5).
type ConnectionSet struct {
	connections []Connection
}

// NewConnectionSet builds a set from an explicit slice of connections.
func NewConnectionSet(connections []Connection) *ConnectionSet {
	cs := &ConnectionSet{connections: make([]Connection, len(connections))}
	copy(cs.connections, connections)
	return cs
}

// NewDefaultConnectionSet returns a fresh copy of the predefined set.
func NewDefaultConnectionSet() *ConnectionSet {
	return NewConnectionSet(DefaultConnections)
}

// Copy returns an independent copy of the set.
func (cs *ConnectionSet) Copy() *ConnectionSet {
	return NewConnectionSet(cs.connections)
}

// Add appends a connection, preserving insertion order for find ties.
func (cs *ConnectionSet) Add(conn Connection) {
	if IsIDRestricted(conn.Base) {
		log.Warnf("connection %s added at a reserved COB-ID", conn)
	}
	cs.connections = append(cs.connections, conn)
}

// FindByService returns the index of the first connection matching
// (service, direction), or -1.
func (cs *ConnectionSet) FindByService(service Service, direction Direction) int {
	for i, c := range cs.connections {
		if c.Service == service && c.Direction == direction {
			return i
		}
	}
	return -1
}

// FindByCOBID returns the index of the connection whose [Base, Base+Range)
// range contains cobID, or -1. Linear scan, acceptable for small sets
// (spec section 4.2).
func (cs *ConnectionSet) FindByCOBID(cobID uint16) int {
	for i, c := range cs.connections {
		if cobID >= c.Base && cobID < c.Base+c.Range {
			return i
		}
	}
	return -1
}

// At returns the connection at index i.
func (cs *ConnectionSet) At(i int) Connection {
	return cs.connections[i]
}

// Len returns the number of connections in the set.
func (cs *ConnectionSet) Len() int {
	return len(cs.connections)
}

func (cs *ConnectionSet) String() string {
	lines := make([]string, len(cs.connections))
	for i, c := range cs.connections {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// IsIDRestricted reports whether a COB-ID falls in a reserved range:
// 0x000..0x07F, 0x101..0x180, the SDO node ranges 0x581..0x5FF and
// 0x601..0x67F, 0x6E0..0x6FF, and everything from 0x701 up (NMT-EC node
// range and LSS). SYNC (0x080) and TIME (0x100) are not in these ranges.
// Mirrored from the original source's notion of restricted identifiers
// so callers extending a connection set get a warning rather than
// silent overlap.
func IsIDRestricted(id uint16) bool {
	return id <= 0x7f ||
		(id >= 0x101 && id <= 0x180) ||
		(id >= 0x581 && id <= 0x5FF) ||
		(id >= 0x601 && id <= 0x67F) ||
		(id >= 0x6E0 && id <= 0x6FF) ||
		id >= 0x701
}
