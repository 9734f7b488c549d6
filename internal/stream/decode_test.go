package stream

import (
	"encoding/binary"
	"testing"

	"tradegate/internal/model"
)

// angelFrame crafts a little-endian SmartAPI tick frame.
func angelFrame(mode byte, exchange byte, token string, ltpPaise uint64, size int) []byte {
	b := make([]byte, size)
	b[0] = mode
	b[1] = exchange
	copy(b[2:27], token)
	binary.LittleEndian.PutUint64(b[35:43], 1724900000000) // exchange ts, ms
	binary.LittleEndian.PutUint64(b[43:51], ltpPaise)
	return b
}

func TestAngelDecode_LTP(t *testing.T) {
	p := NewAngelProtocol("key", "client")

	ticks, err := p.Decode(angelFrame(1, 1, "2885", 250075, angelMinFrame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	tick := ticks[0]
	if tick.Token != "2885" || tick.Exchange != "NSE" {
		t.Fatalf("bad identity: %+v", tick)
	}
	if tick.LTP != 2500.75 {
		t.Fatalf("paise must convert to rupees: got %v", tick.LTP)
	}
	if tick.Mode != model.ModeLTP {
		t.Fatalf("expected LTP mode, got %v", tick.Mode)
	}
}

func TestAngelDecode_QuoteOHLC(t *testing.T) {
	p := NewAngelProtocol("key", "client")

	b := angelFrame(2, 2, "53001", 100000, angelQuoteFrame)
	binary.LittleEndian.PutUint64(b[67:75], 12345) // volume
	binary.LittleEndian.PutUint64(b[91:99], 99000)
	binary.LittleEndian.PutUint64(b[99:107], 101000)
	binary.LittleEndian.PutUint64(b[107:115], 98500)
	binary.LittleEndian.PutUint64(b[115:123], 99500)

	ticks, err := p.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tick := ticks[0]
	if tick.Exchange != "NFO" || tick.Volume != 12345 {
		t.Fatalf("bad quote fields: %+v", tick)
	}
	want := model.OHLC{Open: 990, High: 1010, Low: 985, Close: 995}
	if tick.OHLC != want {
		t.Fatalf("expected OHLC %+v, got %+v", want, tick.OHLC)
	}
}

func TestAngelDecode_SnapQuoteDepth(t *testing.T) {
	p := NewAngelProtocol("key", "client")

	b := angelFrame(3, 1, "2885", 250000, angelSnapFrame)
	// Two levels: one buy, one sell.
	lvl := b[147:]
	binary.LittleEndian.PutUint16(lvl[0:2], 0) // buy
	binary.LittleEndian.PutUint64(lvl[2:10], 100)
	binary.LittleEndian.PutUint64(lvl[10:18], 249950)
	binary.LittleEndian.PutUint16(lvl[18:20], 3)
	lvl = b[167:]
	binary.LittleEndian.PutUint16(lvl[0:2], 1) // sell
	binary.LittleEndian.PutUint64(lvl[2:10], 200)
	binary.LittleEndian.PutUint64(lvl[10:18], 250050)
	binary.LittleEndian.PutUint16(lvl[18:20], 5)

	ticks, err := p.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tick := ticks[0]
	if len(tick.Bids) == 0 || tick.Bids[0].Price != 2499.50 || tick.Bids[0].Qty != 100 {
		t.Fatalf("bad bids: %+v", tick.Bids)
	}
	if len(tick.Asks) == 0 || tick.Asks[0].Price != 2500.50 || tick.Asks[0].Orders != 5 {
		t.Fatalf("bad asks: %+v", tick.Asks)
	}
}

func TestAngelDecode_ShortFrame(t *testing.T) {
	p := NewAngelProtocol("key", "client")
	if _, err := p.Decode(make([]byte, 10)); err == nil {
		t.Fatal("short frame must fail")
	}
}

// kiteFrame wraps packets in the big-endian multi-packet envelope.
func kiteFrame(packets ...[]byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(packets)))
	for _, p := range packets {
		size := make([]byte, 2)
		binary.BigEndian.PutUint16(size, uint16(len(p)))
		out = append(out, size...)
		out = append(out, p...)
	}
	return out
}

func kiteLTP(token, ltpPaise uint32) []byte {
	b := make([]byte, kiteLTPPacket)
	binary.BigEndian.PutUint32(b[0:4], token)
	binary.BigEndian.PutUint32(b[4:8], ltpPaise)
	return b
}

func TestKiteDecode_MultiPacket(t *testing.T) {
	p := NewZerodhaProtocol("key")

	// Segment byte 1 = NSE: token 738561 = (2885<<8)|1.
	ticks, err := p.Decode(kiteFrame(kiteLTP(738561, 250075), kiteLTP(408065, 150000)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(ticks))
	}
	if ticks[0].Token != "738561" || ticks[0].LTP != 2500.75 || ticks[0].Exchange != "NSE" {
		t.Fatalf("bad first tick: %+v", ticks[0])
	}
	if ticks[1].LTP != 1500 {
		t.Fatalf("bad second tick: %+v", ticks[1])
	}
}

func TestKiteDecode_FullPacketDepth(t *testing.T) {
	p := NewZerodhaProtocol("key")

	b := make([]byte, kiteFullPacket)
	binary.BigEndian.PutUint32(b[0:4], 738561)
	binary.BigEndian.PutUint32(b[4:8], 250000)
	binary.BigEndian.PutUint32(b[48:52], 999)        // OI
	binary.BigEndian.PutUint32(b[60:64], 1724900000) // exchange ts
	// First bid level and first ask level.
	binary.BigEndian.PutUint32(b[64:68], 100)
	binary.BigEndian.PutUint32(b[68:72], 249950)
	binary.BigEndian.PutUint16(b[72:74], 3)
	off := 64 + 5*12
	binary.BigEndian.PutUint32(b[off:off+4], 200)
	binary.BigEndian.PutUint32(b[off+4:off+8], 250050)
	binary.BigEndian.PutUint16(b[off+8:off+10], 5)

	ticks, err := p.Decode(kiteFrame(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tick := ticks[0]
	if tick.Mode != model.ModeFull || tick.OI != 999 {
		t.Fatalf("bad full fields: %+v", tick)
	}
	if len(tick.Bids) != 5 || len(tick.Asks) != 5 {
		t.Fatalf("expected 5 levels per side, got %d/%d", len(tick.Bids), len(tick.Asks))
	}
	if tick.Bids[0].Price != 2499.50 || tick.Asks[0].Price != 2500.50 {
		t.Fatalf("bad best levels: bid=%+v ask=%+v", tick.Bids[0], tick.Asks[0])
	}
}

func TestKiteDecode_HeartbeatAndTruncation(t *testing.T) {
	p := NewZerodhaProtocol("key")

	if ticks, err := p.Decode([]byte{0}); err != nil || ticks != nil {
		t.Fatalf("1-byte heartbeat must decode to nothing: %v %v", ticks, err)
	}

	bad := kiteFrame(kiteLTP(738561, 250000))
	if _, err := p.Decode(bad[:len(bad)-2]); err == nil {
		t.Fatal("truncated frame must fail")
	}
}

func TestFyersDecode_Quote(t *testing.T) {
	p := NewFyersProtocol("APP-100")

	b := make([]byte, fyersQuoteFrame)
	b[0] = byte(model.ModeQuote)
	binary.BigEndian.PutUint32(b[1:5], 101000000)
	binary.BigEndian.PutUint32(b[5:9], 250075)
	binary.BigEndian.PutUint32(b[9:13], 4242)
	binary.BigEndian.PutUint32(b[13:17], 249000)

	ticks, err := p.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tick := ticks[0]
	if tick.Token != "101000000" || tick.LTP != 2500.75 || tick.Volume != 4242 {
		t.Fatalf("bad tick: %+v", tick)
	}
	if tick.OHLC.Open != 2490 {
		t.Fatalf("bad open: %v", tick.OHLC.Open)
	}
}

func TestFyersHandshakeFrame(t *testing.T) {
	p := NewFyersProtocol("APP-100")

	cred := p.appID + ":" + "token-1"
	frame := make([]byte, 3+len(cred))
	frame[0] = fyersAuthFrameType
	binary.BigEndian.PutUint16(frame[1:3], uint16(len(cred)))
	copy(frame[3:], cred)

	if int(binary.BigEndian.Uint16(frame[1:3])) != len(cred) {
		t.Fatal("length prefix must match credential length")
	}
	if string(frame[3:]) != "APP-100:token-1" {
		t.Fatalf("credential body mismatch: %q", frame[3:])
	}
}

func TestManagerEmit_ResolvesSymbolAndDrops(t *testing.T) {
	m := NewManager(NewAngelProtocol("key", "client"), nil)
	m.RegisterTokens([]model.SymbolData{
		{Token: "2885", Symbol: "RELIANCE-EQ", Exchange: "NSE"},
	})

	m.emit(model.Tick{Token: "2885", LTP: 2500})
	select {
	case tick := <-m.Ticks():
		if tick.Symbol != "RELIANCE-EQ" || tick.Exchange != "NSE" {
			t.Fatalf("registry must label the tick: %+v", tick)
		}
	default:
		t.Fatal("tick must be buffered")
	}

	// A full buffer drops instead of blocking.
	for i := 0; i < tickBufferSize+10; i++ {
		m.emit(model.Tick{Token: "2885", LTP: 2500})
	}
	if len(m.ticks) != tickBufferSize {
		t.Fatalf("buffer must cap at %d, got %d", tickBufferSize, len(m.ticks))
	}
}

func TestSubscriptionBookkeeping(t *testing.T) {
	m := NewManager(NewAngelProtocol("key", "client"), nil)

	subs := []Subscription{
		{Exchange: "NSE", Token: "2885"},
		{Exchange: "NSE", Token: "3045"},
	}
	if err := m.Subscribe(model.ModeQuote, subs); err != nil {
		t.Fatalf("subscribe while disconnected must record state: %v", err)
	}
	if len(m.subs) != 2 {
		t.Fatalf("expected 2 tracked subscriptions, got %d", len(m.subs))
	}

	byMode := m.groupByMode()
	if len(byMode[model.ModeQuote]) != 2 {
		t.Fatalf("replay set must carry the mode: %+v", byMode)
	}

	if err := m.Unsubscribe(model.ModeQuote, subs[:1]); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if len(m.subs) != 1 {
		t.Fatalf("expected 1 remaining subscription, got %d", len(m.subs))
	}
	if m.State() != StateDisconnected {
		t.Fatalf("manager must stay disconnected, got %v", m.State())
	}
}
