package core

// core/protocol.go — the binary request/response protocol between the client
// and the sync server. One encoded message per websocket binary frame;
// integers are little-endian, strings and sections are length-prefixed. The
// encoding is additive: receivers ignore unknown message kinds.

import (
	"bytes"
	"encoding/binary"
	"math"
)

// MsgKind tags a client-to-server payload.
type MsgKind uint8

const (
	MsgConnect MsgKind = iota + 1
	MsgTripleUpdate
	MsgQuery
	MsgSubscribe
	MsgUnsubscribe
)

// ServerMsgKind tags a server-to-client payload.
type ServerMsgKind uint8

const (
	MsgResponse ServerMsgKind = iota + 1
	MsgSubscriptionUpdate
)

// Row cell tags.
const (
	cellUndefined byte = 0
	cellID        byte = 1
	cellValue     byte = 2
)

// Pattern term tags.
const (
	termVar   byte = 0
	termID    byte = 1
	termValue byte = 2
)

// noLimit marks an absent limit on the wire.
const noLimit uint32 = math.MaxUint32

// ClientMessage is one request frame. Exactly one payload field matching
// Kind is set.
type ClientMessage struct {
	RequestID uint32
	Kind      MsgKind

	Connect     *ConnectRequest
	Update      *TripleUpdateRequest
	Query       *QueryRequest
	Subscribe   *SubscribeRequest
	Unsubscribe *UnsubscribeRequest
}

// ConnectRequest opens a session. Token may be empty.
type ConnectRequest struct {
	APIKey string
	Token  string
}

// WireTriple is a fact on the wire. A triple without a value is a tombstone
// retracting the current fact for (Entity, Attr).
type WireTriple struct {
	Entity   ID
	Attr     ID
	HasValue bool
	Value    Value
	Stamp    Timestamp
}

// TripleUpdateRequest commits a batch of triples.
type TripleUpdateRequest struct {
	Triples []WireTriple
}

// WireTerm is one pattern slot: a labeled variable placeholder, an
// identifier, or a typed value.
type WireTerm struct {
	Tag   byte
	Var   string
	ID    ID
	Value Value
}

// WirePattern is a query clause on the wire.
type WirePattern struct {
	Entity WireTerm
	Attr   WireTerm
	Value  WireTerm
}

// WireOrder is one sort key on the wire.
type WireOrder struct {
	Var  string
	Desc bool
}

// QueryRequest carries projection, clauses, ordering and limit.
type QueryRequest struct {
	Find     []string
	Where    []WirePattern
	Optional []WirePattern
	WhereNot []WirePattern
	OrderBy  []WireOrder
	HasLimit bool
	Limit    uint32
}

// SubscribeRequest registers interest in server-pushed changes.
type SubscribeRequest struct {
	SubscriptionID ID
}

// UnsubscribeRequest withdraws a subscription.
type UnsubscribeRequest struct {
	SubscriptionID ID
}

// ServerMessage is one frame from the server.
type ServerMessage struct {
	Kind ServerMsgKind

	Response *Response
	Update   *SubscriptionUpdate
}

// Response answers the request with the same RequestID. Code zero is
// success; any other code is a failure described by Message.
type Response struct {
	RequestID uint32
	Code      uint16
	Message   string
	Columns   uint16
	Rows      []Row
}

// SubscriptionUpdate pushes committed changes for a subscription.
type SubscriptionUpdate struct {
	SubscriptionID ID
	Changes        []WireTriple
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func writeStamp(buf *bytes.Buffer, t Timestamp) {
	writeU64(buf, t.Wall)
	writeU32(buf, t.Logical)
	writeU32(buf, t.Node)
}

func writeTriple(buf *bytes.Buffer, t WireTriple) error {
	buf.Write(t.Entity[:])
	buf.Write(t.Attr[:])
	var flags byte
	if t.HasValue {
		flags |= 1
	}
	buf.WriteByte(flags)
	if t.HasValue {
		enc, err := t.Value.Encode()
		if err != nil {
			return err
		}
		buf.Write(enc)
	}
	writeStamp(buf, t.Stamp)
	return nil
}

func writeTerm(buf *bytes.Buffer, t WireTerm) error {
	buf.WriteByte(t.Tag)
	switch t.Tag {
	case termVar:
		writeString(buf, t.Var)
	case termID:
		buf.Write(t.ID[:])
	case termValue:
		enc, err := t.Value.Encode()
		if err != nil {
			return err
		}
		buf.Write(enc)
	default:
		return Errf(ErrProtocol, "unknown term tag %d", t.Tag)
	}
	return nil
}

func writePatterns(buf *bytes.Buffer, ps []WirePattern) error {
	writeU16(buf, uint16(len(ps)))
	for _, p := range ps {
		for _, t := range []WireTerm{p.Entity, p.Attr, p.Value} {
			if err := writeTerm(buf, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeClientMessage renders m as one wire frame.
func EncodeClientMessage(m *ClientMessage) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, m.RequestID)
	buf.WriteByte(byte(m.Kind))
	switch m.Kind {
	case MsgConnect:
		writeString(&buf, m.Connect.APIKey)
		writeString(&buf, m.Connect.Token)
	case MsgTripleUpdate:
		writeU32(&buf, uint32(len(m.Update.Triples)))
		for _, t := range m.Update.Triples {
			if err := writeTriple(&buf, t); err != nil {
				return nil, err
			}
		}
	case MsgQuery:
		q := m.Query
		writeU16(&buf, uint16(len(q.Find)))
		for _, v := range q.Find {
			writeString(&buf, v)
		}
		for _, section := range [][]WirePattern{q.Where, q.Optional, q.WhereNot} {
			if err := writePatterns(&buf, section); err != nil {
				return nil, err
			}
		}
		writeU16(&buf, uint16(len(q.OrderBy)))
		for _, o := range q.OrderBy {
			writeString(&buf, o.Var)
			if o.Desc {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
		if q.HasLimit {
			writeU32(&buf, q.Limit)
		} else {
			writeU32(&buf, noLimit)
		}
	case MsgSubscribe:
		buf.Write(m.Subscribe.SubscriptionID[:])
	case MsgUnsubscribe:
		buf.Write(m.Unsubscribe.SubscriptionID[:])
	default:
		return nil, Errf(ErrProtocol, "unknown client message kind %d", m.Kind)
	}
	return buf.Bytes(), nil
}

// EncodeServerMessage renders m as one wire frame.
func EncodeServerMessage(m *ServerMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind))
	switch m.Kind {
	case MsgResponse:
		r := m.Response
		writeU32(&buf, r.RequestID)
		writeU16(&buf, r.Code)
		writeString(&buf, r.Message)
		writeU16(&buf, r.Columns)
		writeU32(&buf, uint32(len(r.Rows)))
		for _, row := range r.Rows {
			if len(row) != int(r.Columns) {
				return nil, Errf(ErrProtocol, "row has %d cells, want %d", len(row), r.Columns)
			}
			for _, d := range row {
				if err := writeCell(&buf, d); err != nil {
					return nil, err
				}
			}
		}
	case MsgSubscriptionUpdate:
		u := m.Update
		buf.Write(u.SubscriptionID[:])
		writeU32(&buf, uint32(len(u.Changes)))
		for _, t := range u.Changes {
			if err := writeTriple(&buf, t); err != nil {
				return nil, err
			}
		}
	default:
		return nil, Errf(ErrProtocol, "unknown server message kind %d", m.Kind)
	}
	return buf.Bytes(), nil
}

func writeCell(buf *bytes.Buffer, d Datum) error {
	switch {
	case !d.Defined():
		buf.WriteByte(cellUndefined)
	case d.IsID:
		buf.WriteByte(cellID)
		buf.Write(d.ID[:])
	default:
		buf.WriteByte(cellValue)
		enc, err := d.Value.Encode()
		if err != nil {
			return err
		}
		buf.Write(enc)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type frameReader struct {
	buf []byte
	off int
	err error
}

func (r *frameReader) fail(msg string) {
	if r.err == nil {
		r.err = Errf(ErrProtocol, "%s at offset %d", msg, r.off)
	}
}

func (r *frameReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("frame truncated")
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *frameReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *frameReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *frameReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *frameReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *frameReader) str() string {
	n := r.u16()
	return string(r.take(int(n)))
}

func (r *frameReader) id() ID {
	var id ID
	copy(id[:], r.take(16))
	return id
}

func (r *frameReader) stamp() Timestamp {
	return Timestamp{Wall: r.u64(), Logical: r.u32(), Node: r.u32()}
}

func (r *frameReader) value() Value {
	switch tag := r.u8(); tag {
	case wireValueString:
		return String(r.str())
	case wireValueNumber:
		return Number(math.Float64frombits(r.u64()))
	case wireValueBool:
		return Boolean(r.u8() != 0)
	default:
		r.fail("unknown value tag")
		return Value{}
	}
}

func (r *frameReader) triple() WireTriple {
	t := WireTriple{Entity: r.id(), Attr: r.id()}
	flags := r.u8()
	if flags&1 != 0 {
		t.HasValue = true
		t.Value = r.value()
	}
	t.Stamp = r.stamp()
	return t
}

func (r *frameReader) term() WireTerm {
	t := WireTerm{Tag: r.u8()}
	switch t.Tag {
	case termVar:
		t.Var = r.str()
	case termID:
		t.ID = r.id()
	case termValue:
		t.Value = r.value()
	default:
		r.fail("unknown term tag")
	}
	return t
}

func (r *frameReader) patterns() []WirePattern {
	n := int(r.u16())
	ps := make([]WirePattern, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ps = append(ps, WirePattern{Entity: r.term(), Attr: r.term(), Value: r.term()})
	}
	return ps
}

// DecodeClientMessage parses one client frame.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	r := &frameReader{buf: data}
	m := &ClientMessage{RequestID: r.u32(), Kind: MsgKind(r.u8())}
	switch m.Kind {
	case MsgConnect:
		m.Connect = &ConnectRequest{APIKey: r.str(), Token: r.str()}
	case MsgTripleUpdate:
		n := int(r.u32())
		upd := &TripleUpdateRequest{}
		for i := 0; i < n && r.err == nil; i++ {
			upd.Triples = append(upd.Triples, r.triple())
		}
		m.Update = upd
	case MsgQuery:
		q := &QueryRequest{}
		nf := int(r.u16())
		for i := 0; i < nf && r.err == nil; i++ {
			q.Find = append(q.Find, r.str())
		}
		q.Where = r.patterns()
		q.Optional = r.patterns()
		q.WhereNot = r.patterns()
		no := int(r.u16())
		for i := 0; i < no && r.err == nil; i++ {
			q.OrderBy = append(q.OrderBy, WireOrder{Var: r.str(), Desc: r.u8() != 0})
		}
		if limit := r.u32(); limit != noLimit {
			q.HasLimit = true
			q.Limit = limit
		}
		m.Query = q
	case MsgSubscribe:
		m.Subscribe = &SubscribeRequest{SubscriptionID: r.id()}
	case MsgUnsubscribe:
		m.Unsubscribe = &UnsubscribeRequest{SubscriptionID: r.id()}
	default:
		return nil, Errf(ErrProtocol, "unknown client message kind %d", m.Kind)
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// DecodeServerMessage parses one server frame.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	r := &frameReader{buf: data}
	m := &ServerMessage{Kind: ServerMsgKind(r.u8())}
	switch m.Kind {
	case MsgResponse:
		resp := &Response{RequestID: r.u32(), Code: r.u16(), Message: r.str()}
		resp.Columns = r.u16()
		nRows := int(r.u32())
		for i := 0; i < nRows && r.err == nil; i++ {
			row := make(Row, 0, resp.Columns)
			for c := 0; c < int(resp.Columns) && r.err == nil; c++ {
				row = append(row, r.cell())
			}
			resp.Rows = append(resp.Rows, row)
		}
		m.Response = resp
	case MsgSubscriptionUpdate:
		u := &SubscriptionUpdate{SubscriptionID: r.id()}
		n := int(r.u32())
		for i := 0; i < n && r.err == nil; i++ {
			u.Changes = append(u.Changes, r.triple())
		}
		m.Update = u
	default:
		return nil, Errf(ErrProtocol, "unknown server message kind %d", m.Kind)
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

func (r *frameReader) cell() Datum {
	switch tag := r.u8(); tag {
	case cellUndefined:
		return Datum{}
	case cellID:
		return IDDatum(r.id())
	case cellValue:
		return ValueDatum(r.value())
	default:
		r.fail("unknown cell tag")
		return Datum{}
	}
}

// ---------------------------------------------------------------------------
// Conversions between core and wire forms
// ---------------------------------------------------------------------------

// FactToWire renders a stamped fact as a wire triple; a fact without a value
// becomes a tombstone.
func FactToWire(f Fact) WireTriple {
	return WireTriple{
		Entity:   f.Entity,
		Attr:     f.Attr,
		HasValue: f.Value.Kind != KindAbsent,
		Value:    f.Value,
		Stamp:    f.Stamp,
	}
}

// WireToFact converts back; tombstones yield a fact with an absent value.
func WireToFact(t WireTriple) Fact {
	f := Fact{Entity: t.Entity, Attr: t.Attr, Stamp: t.Stamp}
	if t.HasValue {
		f.Value = t.Value
	}
	return f
}

// QueryToWire lowers an engine query for transmission. Store-level filter
// predicates cannot cross the wire; callers reject them beforehand.
func QueryToWire(q Query) *QueryRequest {
	out := &QueryRequest{}
	for _, v := range q.Find {
		out.Find = append(out.Find, string(v))
	}
	out.Where = patternsToWire(q.Where)
	out.Optional = patternsToWire(q.Optional)
	out.WhereNot = patternsToWire(q.WhereNot)
	for _, o := range q.OrderBy {
		out.OrderBy = append(out.OrderBy, WireOrder{Var: string(o.Var), Desc: o.Desc})
	}
	if q.HasLimit {
		out.HasLimit = true
		if q.Limit > 0 {
			out.Limit = uint32(q.Limit)
		}
	}
	return out
}

// QueryFromWire raises a wire query back into engine form.
func QueryFromWire(req *QueryRequest) Query {
	q := Query{}
	for _, v := range req.Find {
		q.Find = append(q.Find, Var(v))
	}
	q.Where = patternsFromWire(req.Where)
	q.Optional = patternsFromWire(req.Optional)
	q.WhereNot = patternsFromWire(req.WhereNot)
	for _, o := range req.OrderBy {
		q.OrderBy = append(q.OrderBy, Order{Var: Var(o.Var), Desc: o.Desc})
	}
	if req.HasLimit {
		q.HasLimit = true
		q.Limit = int(req.Limit)
	}
	return q
}

func patternsToWire(ps []Pattern) []WirePattern {
	out := make([]WirePattern, 0, len(ps))
	for _, p := range ps {
		out = append(out, WirePattern{
			Entity: termToWire(p.Entity),
			Attr:   termToWire(p.Attr),
			Value:  termToWire(p.Value),
		})
	}
	return out
}

func patternsFromWire(ps []WirePattern) []Pattern {
	out := make([]Pattern, 0, len(ps))
	for _, p := range ps {
		out = append(out, Pattern{
			Entity: termFromWire(p.Entity),
			Attr:   termFromWire(p.Attr),
			Value:  termFromWire(p.Value),
		})
	}
	return out
}

func termToWire(t Term) WireTerm {
	switch {
	case t.IsVar():
		return WireTerm{Tag: termVar, Var: string(t.Var)}
	case t.Lit.IsID:
		return WireTerm{Tag: termID, ID: t.Lit.ID}
	default:
		return WireTerm{Tag: termValue, Value: t.Lit.Value}
	}
}

func termFromWire(t WireTerm) Term {
	switch t.Tag {
	case termID:
		return LitID(t.ID)
	case termValue:
		return LitValue(t.Value)
	default:
		return V(Var(t.Var))
	}
}
