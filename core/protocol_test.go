package core

import (
	"testing"
)

// TestClientMessageRoundTrip encodes and decodes one message of each client
// kind with representative payloads.
func TestClientMessageRoundTrip(t *testing.T) {
	e := NewEntityID()
	attr := AttributeID("users", "name")
	stamp := Timestamp{Wall: 123456, Logical: 7, Node: 99}

	msgs := []*ClientMessage{
		{RequestID: 1, Kind: MsgConnect, Connect: &ConnectRequest{APIKey: "key_1", Token: "a.b.c"}},
		{RequestID: 2, Kind: MsgTripleUpdate, Update: &TripleUpdateRequest{Triples: []WireTriple{
			{Entity: e, Attr: attr, HasValue: true, Value: String("x"), Stamp: stamp},
			{Entity: e, Attr: attr, Stamp: stamp}, // tombstone
			{Entity: e, Attr: attr, HasValue: true, Value: Number(3.5), Stamp: stamp},
			{Entity: e, Attr: attr, HasValue: true, Value: Boolean(true), Stamp: stamp},
		}}},
		{RequestID: 3, Kind: MsgQuery, Query: &QueryRequest{
			Find: []string{"id", "name"},
			Where: []WirePattern{{
				Entity: WireTerm{Tag: 0, Var: "id"},
				Attr:   WireTerm{Tag: 1, ID: attr},
				Value:  WireTerm{Tag: 2, Value: String("Alice")},
			}},
			Optional: []WirePattern{{
				Entity: WireTerm{Tag: 0, Var: "id"},
				Attr:   WireTerm{Tag: 1, ID: attr},
				Value:  WireTerm{Tag: 0, Var: "name"},
			}},
			OrderBy:  []WireOrder{{Var: "name", Desc: true}},
			HasLimit: true,
			Limit:    10,
		}},
		{RequestID: 4, Kind: MsgSubscribe, Subscribe: &SubscribeRequest{SubscriptionID: e}},
		{RequestID: 5, Kind: MsgUnsubscribe, Unsubscribe: &UnsubscribeRequest{SubscriptionID: e}},
	}
	for _, m := range msgs {
		frame, err := EncodeClientMessage(m)
		if err != nil {
			t.Fatalf("encode kind %d: %v", m.Kind, err)
		}
		back, err := DecodeClientMessage(frame)
		if err != nil {
			t.Fatalf("decode kind %d: %v", m.Kind, err)
		}
		if back.RequestID != m.RequestID || back.Kind != m.Kind {
			t.Fatalf("header mismatch: %+v vs %+v", back, m)
		}
	}

	// Deep-check the query payload, the richest shape.
	frame, _ := EncodeClientMessage(msgs[2])
	back, err := DecodeClientMessage(frame)
	if err != nil {
		t.Fatalf("decode query: %v", err)
	}
	q := back.Query
	if len(q.Find) != 2 || q.Find[1] != "name" {
		t.Fatalf("find lost: %+v", q.Find)
	}
	if len(q.Where) != 1 || q.Where[0].Attr.ID != attr || q.Where[0].Value.Value.Str != "Alice" {
		t.Fatalf("where lost: %+v", q.Where)
	}
	if len(q.Optional) != 1 || q.Optional[0].Value.Var != "name" {
		t.Fatalf("optional lost: %+v", q.Optional)
	}
	if !q.HasLimit || q.Limit != 10 || len(q.OrderBy) != 1 || !q.OrderBy[0].Desc {
		t.Fatalf("order/limit lost: %+v", q)
	}

	// And the update payload including the tombstone.
	frame, _ = EncodeClientMessage(msgs[1])
	back, err = DecodeClientMessage(frame)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	ts := back.Update.Triples
	if len(ts) != 4 {
		t.Fatalf("triples lost: %d", len(ts))
	}
	if ts[0].Value.Str != "x" || ts[0].Stamp != stamp || ts[0].Entity != e {
		t.Fatalf("triple 0 mismatch: %+v", ts[0])
	}
	if ts[1].HasValue {
		t.Fatalf("tombstone grew a value: %+v", ts[1])
	}
	if ts[2].Value.Num != 3.5 || !ts[3].Value.Bool {
		t.Fatalf("typed values lost: %+v %+v", ts[2], ts[3])
	}
}

// TestServerMessageRoundTrip covers responses with mixed cells and
// subscription updates.
func TestServerMessageRoundTrip(t *testing.T) {
	e := NewEntityID()
	resp := &ServerMessage{Kind: MsgResponse, Response: &Response{
		RequestID: 9,
		Code:      0,
		Columns:   3,
		Rows: []Row{
			{IDDatum(e), ValueDatum(String("Alice")), ValueDatum(Number(30))},
			{IDDatum(e), ValueDatum(String("Bob")), {}}, // undefined cell
		},
	}}
	frame, err := EncodeServerMessage(resp)
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	back, err := DecodeServerMessage(frame)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	rows := back.Response.Rows
	if len(rows) != 2 {
		t.Fatalf("rows lost: %d", len(rows))
	}
	if !rows[0][0].IsID || rows[0][0].ID != e {
		t.Fatalf("id cell lost: %+v", rows[0][0])
	}
	if rows[1][2].Defined() {
		t.Fatalf("undefined cell decoded as defined: %+v", rows[1][2])
	}

	fail := &ServerMessage{Kind: MsgResponse, Response: &Response{
		RequestID: 10, Code: 7, Message: "no such subscription",
	}}
	frame, err = EncodeServerMessage(fail)
	if err != nil {
		t.Fatalf("encode failure response: %v", err)
	}
	back, err = DecodeServerMessage(frame)
	if err != nil {
		t.Fatalf("decode failure response: %v", err)
	}
	if back.Response.Code != 7 || back.Response.Message != "no such subscription" {
		t.Fatalf("status lost: %+v", back.Response)
	}

	upd := &ServerMessage{Kind: MsgSubscriptionUpdate, Update: &SubscriptionUpdate{
		SubscriptionID: e,
		Changes: []WireTriple{
			{Entity: e, Attr: AttributeID("users", "name"), HasValue: true, Value: String("x"), Stamp: Timestamp{Wall: 5, Node: 2}},
		},
	}}
	frame, err = EncodeServerMessage(upd)
	if err != nil {
		t.Fatalf("encode update: %v", err)
	}
	back, err = DecodeServerMessage(frame)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if back.Update.SubscriptionID != e || len(back.Update.Changes) != 1 {
		t.Fatalf("subscription update lost: %+v", back.Update)
	}
}

// TestDecodeRejectsGarbage verifies truncated and unknown frames surface
// PROTOCOL errors.
func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeServerMessage([]byte{}); KindOf(err) != ErrProtocol {
		t.Fatalf("empty frame: %v", err)
	}
	if _, err := DecodeServerMessage([]byte{99}); KindOf(err) != ErrProtocol {
		t.Fatalf("unknown kind: %v", err)
	}
	good, _ := EncodeClientMessage(&ClientMessage{RequestID: 1, Kind: MsgConnect, Connect: &ConnectRequest{APIKey: "k"}})
	if _, err := DecodeClientMessage(good[:len(good)-1]); KindOf(err) != ErrProtocol {
		t.Fatalf("truncated frame: %v", err)
	}
}

// TestQueryWireConversion verifies the engine/wire query mapping preserves
// terms, ordering and limit.
func TestQueryWireConversion(t *testing.T) {
	attr := AttributeID("users", "age")
	q := Query{
		Find: []Var{"id", "age"},
		Where: []Pattern{
			{Entity: V("id"), Attr: LitID(attr), Value: V("age")},
		},
		WhereNot: []Pattern{
			{Entity: V("id"), Attr: LitID(attr), Value: LitValue(Number(99))},
		},
		OrderBy:  []Order{{Var: "age", Desc: true}},
		HasLimit: true,
		Limit:    5,
	}
	back := QueryFromWire(QueryToWire(q))
	if len(back.Find) != 2 || back.Find[0] != "id" {
		t.Fatalf("find mangled: %+v", back.Find)
	}
	if !back.Where[0].Attr.Lit.Equal(IDDatum(attr)) {
		t.Fatalf("where attr mangled: %+v", back.Where[0])
	}
	if !back.WhereNot[0].Value.Lit.Equal(ValueDatum(Number(99))) {
		t.Fatalf("whereNot value mangled: %+v", back.WhereNot[0])
	}
	if !back.HasLimit || back.Limit != 5 || !back.OrderBy[0].Desc {
		t.Fatalf("order/limit mangled: %+v", back)
	}
}

// TestDecodeTruncatedZeroesOut verifies a frame shorter than the message
// header is rejected with an error instead of panicking.
func TestDecodeTruncatedZeroesOut(t *testing.T) {
	if _, err := DecodeClientMessage([]byte{0, 0}); err == nil {
		t.Fatal("short header accepted")
	}
}
