package codec

import "github.com/alasdair-cooper/watch-history/internal/ir"

// EncodeRequests serializes an ordered request batch as returned by the core.
// Unknown effect kinds and operations are written with empty payloads.
func EncodeRequests(reqs []ir.Request) []byte {
	e := encoder{}
	e.u64(uint64(len(reqs)))
	for _, r := range reqs {
		e.u32(r.ID)
		e.u32(uint32(r.Effect.Kind))
		e.nested(func(p *encoder) { encodeEffect(p, r.Effect) })
	}
	return e.buf
}

func encodeEffect(e *encoder, eff ir.Effect) {
	switch eff.Kind {
	case ir.EffectRender:
	case ir.EffectRedirect:
		e.str(eff.URL)
	case ir.EffectHttp:
		req := eff.HTTP
		if req == nil {
			req = &ir.HttpRequest{}
		}
		e.str(req.Method)
		e.str(req.URL)
		e.headers(req.Headers)
		e.bytes(req.Body)
	case ir.EffectKeyValue:
		op := eff.KeyValue
		if op == nil {
			op = &ir.KeyValueOperation{}
		}
		e.u32(uint32(op.Op))
		e.nested(func(p *encoder) { encodeOperation(p, *op) })
	}
}

func encodeOperation(e *encoder, op ir.KeyValueOperation) {
	switch op.Op {
	case ir.KeyValueGet, ir.KeyValueDelete, ir.KeyValueExists:
		e.str(op.Key)
	case ir.KeyValueSet:
		e.str(op.Key)
		e.bytes(op.Value)
	case ir.KeyValueListKeys:
		e.str(op.Prefix)
	}
}

// DecodeRequests parses a request batch. Effects of an unknown kind decode
// with only Kind set; unknown key-value operations decode with only Op set.
// Both are left for the caller to escalate.
func DecodeRequests(b []byte) ([]ir.Request, error) {
	d := newDecoder("requests", b)
	// id + tag + payload length
	n, err := d.count(16)
	if err != nil {
		return nil, err
	}
	reqs := make([]ir.Request, 0, n)
	for i := 0; i < n; i++ {
		id, err := d.u32()
		if err != nil {
			return nil, err
		}
		tag, err := d.u32()
		if err != nil {
			return nil, err
		}
		payload, err := d.nested()
		if err != nil {
			return nil, err
		}
		eff, err := decodeEffect(payload, ir.EffectKind(tag))
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, ir.Request{ID: id, Effect: eff})
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func decodeEffect(d *decoder, kind ir.EffectKind) (ir.Effect, error) {
	eff := ir.Effect{Kind: kind}
	var err error
	switch kind {
	case ir.EffectRender:
	case ir.EffectRedirect:
		if eff.URL, err = d.str(); err != nil {
			return eff, err
		}
	case ir.EffectHttp:
		req := ir.HttpRequest{}
		if req.Method, err = d.str(); err != nil {
			return eff, err
		}
		if req.URL, err = d.str(); err != nil {
			return eff, err
		}
		if req.Headers, err = d.headers(); err != nil {
			return eff, err
		}
		if req.Body, err = d.bytes(); err != nil {
			return eff, err
		}
		eff.HTTP = &req
	case ir.EffectKeyValue:
		tag, err := d.u32()
		if err != nil {
			return eff, err
		}
		inner, err := d.nested()
		if err != nil {
			return eff, err
		}
		op, err := decodeOperation(inner, ir.KeyValueOpKind(tag))
		if err != nil {
			return eff, err
		}
		eff.KeyValue = &op
	default:
		return eff, nil
	}
	return eff, d.finish()
}

func decodeOperation(d *decoder, kind ir.KeyValueOpKind) (ir.KeyValueOperation, error) {
	op := ir.KeyValueOperation{Op: kind}
	var err error
	switch kind {
	case ir.KeyValueGet, ir.KeyValueDelete, ir.KeyValueExists:
		op.Key, err = d.str()
	case ir.KeyValueSet:
		if op.Key, err = d.str(); err == nil {
			op.Value, err = d.bytes()
		}
	case ir.KeyValueListKeys:
		op.Prefix, err = d.str()
	default:
		return op, nil
	}
	if err != nil {
		return op, err
	}
	return op, d.finish()
}
