package codec

import (
	"fmt"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

const (
	resultOk  uint32 = 0
	resultErr uint32 = 1
)

// EncodeResponse serializes a response for HandleResponse. It fails only if
// the response does not carry a result matching its kind.
func EncodeResponse(r ir.Response) ([]byte, error) {
	e := encoder{}
	e.u32(r.RequestID)
	e.u32(uint32(r.Kind))
	switch r.Kind {
	case ir.EffectHttp:
		if r.HTTP == nil || (r.HTTP.Response == nil) == (r.HTTP.Err == nil) {
			return nil, fmt.Errorf("encode response %d: http result must be exactly one of ok or error", r.RequestID)
		}
		e.nested(func(p *encoder) { encodeHTTPResult(p, *r.HTTP) })
	case ir.EffectKeyValue:
		if r.KeyValue == nil || (r.KeyValue.Response == nil) == (r.KeyValue.Err == nil) {
			return nil, fmt.Errorf("encode response %d: key-value result must be exactly one of ok or error", r.RequestID)
		}
		e.nested(func(p *encoder) { encodeKeyValueResult(p, *r.KeyValue) })
	default:
		return nil, fmt.Errorf("encode response %d: %s effects have no response", r.RequestID, r.Kind)
	}
	return e.buf, nil
}

func encodeHTTPResult(e *encoder, res ir.HttpResult) {
	if res.Err != nil {
		e.u32(resultErr)
		e.u32(uint32(res.Err.Kind))
		e.str(res.Err.Message)
		return
	}
	e.u32(resultOk)
	e.u16(res.Response.Status)
	e.headers(res.Response.Headers)
	e.bytes(res.Response.Body)
}

func encodeKeyValueResult(e *encoder, res ir.KeyValueResult) {
	if res.Err != nil {
		e.u32(resultErr)
		e.u32(uint32(res.Err.Kind))
		e.str(res.Err.Message)
		return
	}
	resp := res.Response
	e.u32(resultOk)
	e.u32(uint32(resp.Op))
	switch resp.Op {
	case ir.KeyValueGet:
		if resp.Found {
			e.u8(1)
			e.bytes(resp.Value)
		} else {
			e.u8(0)
		}
	case ir.KeyValueListKeys:
		e.u64(uint64(len(resp.Keys)))
		for _, k := range resp.Keys {
			e.str(k)
		}
	case ir.KeyValueExists:
		e.boolean(resp.Exists)
	}
}

// DecodeResponse parses a response payload.
func DecodeResponse(b []byte) (ir.Response, error) {
	d := newDecoder("response", b)
	id, err := d.u32()
	if err != nil {
		return ir.Response{}, err
	}
	tag, err := d.u32()
	if err != nil {
		return ir.Response{}, err
	}
	r := ir.Response{RequestID: id, Kind: ir.EffectKind(tag)}
	payload, err := d.nested()
	if err != nil {
		return ir.Response{}, err
	}
	switch r.Kind {
	case ir.EffectHttp:
		res, err := decodeHTTPResult(payload)
		if err != nil {
			return ir.Response{}, err
		}
		r.HTTP = &res
	case ir.EffectKeyValue:
		res, err := decodeKeyValueResult(payload)
		if err != nil {
			return ir.Response{}, err
		}
		r.KeyValue = &res
	default:
		return ir.Response{}, &SchemaError{What: "response", Offset: 4, Msg: "effect kind has no response"}
	}
	if err := payload.finish(); err != nil {
		return ir.Response{}, err
	}
	if err := d.finish(); err != nil {
		return ir.Response{}, err
	}
	return r, nil
}

func decodeHTTPResult(d *decoder) (ir.HttpResult, error) {
	tag, err := d.u32()
	if err != nil {
		return ir.HttpResult{}, err
	}
	switch tag {
	case resultOk:
		resp := ir.HttpResponse{}
		if resp.Status, err = d.u16(); err != nil {
			return ir.HttpResult{}, err
		}
		if resp.Headers, err = d.headers(); err != nil {
			return ir.HttpResult{}, err
		}
		if resp.Body, err = d.bytes(); err != nil {
			return ir.HttpResult{}, err
		}
		return ir.HttpResult{Response: &resp}, nil
	case resultErr:
		kind, err := d.u32()
		if err != nil {
			return ir.HttpResult{}, err
		}
		if kind > uint32(ir.HttpErrorTimeout) {
			return ir.HttpResult{}, d.fail("unknown http error kind")
		}
		msg, err := d.str()
		if err != nil {
			return ir.HttpResult{}, err
		}
		return ir.HttpResult{Err: &ir.HttpError{Kind: ir.HttpErrorKind(kind), Message: msg}}, nil
	default:
		return ir.HttpResult{}, d.fail("invalid result tag")
	}
}

func decodeKeyValueResult(d *decoder) (ir.KeyValueResult, error) {
	tag, err := d.u32()
	if err != nil {
		return ir.KeyValueResult{}, err
	}
	switch tag {
	case resultOk:
	case resultErr:
		kind, err := d.u32()
		if err != nil {
			return ir.KeyValueResult{}, err
		}
		if kind > uint32(ir.KeyValueErrorOther) {
			return ir.KeyValueResult{}, d.fail("unknown key-value error kind")
		}
		msg, err := d.str()
		if err != nil {
			return ir.KeyValueResult{}, err
		}
		return ir.KeyValueResult{Err: &ir.KeyValueError{Kind: ir.KeyValueErrorKind(kind), Message: msg}}, nil
	default:
		return ir.KeyValueResult{}, d.fail("invalid result tag")
	}

	op, err := d.u32()
	if err != nil {
		return ir.KeyValueResult{}, err
	}
	resp := ir.KeyValueResponse{Op: ir.KeyValueOpKind(op)}
	switch resp.Op {
	case ir.KeyValueGet:
		some, err := d.option()
		if err != nil {
			return ir.KeyValueResult{}, err
		}
		if some {
			if resp.Value, err = d.bytes(); err != nil {
				return ir.KeyValueResult{}, err
			}
			resp.Found = true
		}
	case ir.KeyValueSet, ir.KeyValueDelete:
	case ir.KeyValueListKeys:
		n, err := d.count(8)
		if err != nil {
			return ir.KeyValueResult{}, err
		}
		resp.Keys = make([]string, 0, n)
		for i := 0; i < n; i++ {
			k, err := d.str()
			if err != nil {
				return ir.KeyValueResult{}, err
			}
			resp.Keys = append(resp.Keys, k)
		}
	case ir.KeyValueExists:
		if resp.Exists, err = d.boolean(); err != nil {
			return ir.KeyValueResult{}, err
		}
	default:
		return ir.KeyValueResult{}, d.fail("unknown key-value response op")
	}
	return ir.KeyValueResult{Response: &resp}, nil
}
