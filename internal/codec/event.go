package codec

import "github.com/alasdair-cooper/watch-history/internal/ir"

// EncodeEvent serializes an event for ProcessEvent.
func EncodeEvent(ev ir.Event) []byte {
	e := encoder{}
	e.u32(uint32(ev.Kind))
	if ev.Kind == ir.EventCallbackReceived {
		e.str(ev.URL)
	}
	return e.buf
}

// DecodeEvent parses an event payload.
func DecodeEvent(b []byte) (ir.Event, error) {
	d := newDecoder("event", b)
	tag, err := d.u32()
	if err != nil {
		return ir.Event{}, err
	}
	ev := ir.Event{Kind: ir.EventKind(tag)}
	switch ev.Kind {
	case ir.EventInitialLoad, ir.EventLoginButtonClicked:
	case ir.EventCallbackReceived:
		if ev.URL, err = d.str(); err != nil {
			return ir.Event{}, err
		}
	default:
		return ir.Event{}, &SchemaError{What: "event", Offset: 0, Msg: "unknown event tag"}
	}
	if err := d.finish(); err != nil {
		return ir.Event{}, err
	}
	return ev, nil
}
