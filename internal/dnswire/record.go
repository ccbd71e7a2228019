package dnswire

import (
	"encoding/binary"
	"fmt"
)

// RRHeader carries the fields shared by every resource record, independent
// of its RDATA shape (RFC 1035 Section 4.1.3).
type RRHeader struct {
	Name  string
	Class uint16
	TTL   uint32
}

// NewRRHeader builds a header for a record in the given class with the given TTL.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: uint16(class), TTL: ttl}
}

// Record is a parsed DNS resource record. Each wire-format RR type is backed by
// an explicit Go type (IPRecord, NameRecord, MXRecord, SRVRecord, OpaqueRecord)
// rather than a single generic struct, so callers can type-assert to the shape
// they expect instead of inspecting an untyped Data field.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// MarshalRecord serializes a record to DNS wire format: name, fixed header
// fields (TYPE/CLASS/TTL/RDLENGTH), then RDATA.
func MarshalRecord(rr Record) ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type() != TypeOPT {
		b, err := EncodeName(rr.Header().Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}

	h := rr.Header()
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rr.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

// ParseRecord parses a single resource record at *off, dispatching to the
// concrete Record implementation for its type and advancing *off past it.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	switch rrType {
	case TypeA, TypeAAAA:
		rr, err := ParseIPRData(msg, off, rdlen)
		if err != nil {
			return nil, err
		}
		rr.SetHeader(h)
		return rr, nil
	case TypeCNAME, TypeNS, TypePTR:
		rr, err := ParseNameRData(msg, off, start, rdlen, rrType)
		if err != nil {
			return nil, err
		}
		rr.SetHeader(h)
		return rr, nil
	case TypeMX:
		rr, err := ParseMXRData(msg, off, start, rdlen)
		if err != nil {
			return nil, err
		}
		rr.SetHeader(h)
		return rr, nil
	case TypeSRV:
		rr, err := ParseSRVRData(msg, off, start, rdlen)
		if err != nil {
			return nil, err
		}
		rr.SetHeader(h)
		return rr, nil
	default:
		rr, err := ParseOpaqueRData(msg, off, rdlen, rrType)
		if err != nil {
			return nil, err
		}
		rr.SetHeader(h)
		return rr, nil
	}
}
