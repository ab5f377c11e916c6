package codec

import (
	"encoding/binary"
	"math"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) i16(v int16) { e.u16(uint16(v)) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) bytes(b []byte) {
	e.u64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) {
	e.u64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// nested writes a length-prefixed block produced by fn.
func (e *encoder) nested(fn func(*encoder)) {
	inner := encoder{}
	fn(&inner)
	e.bytes(inner.buf)
}

type decoder struct {
	what string
	buf  []byte
	off  int
	base int // offset of buf within the top-level payload
}

func newDecoder(what string, b []byte) *decoder {
	return &decoder{what: what, buf: b}
}

func (d *decoder) fail(format string) error {
	return &SchemaError{What: d.what, Offset: d.base + d.off, Msg: format}
}

func (d *decoder) take(n uint64) ([]byte, error) {
	if n > uint64(len(d.buf)-d.off) {
		return nil, d.fail("unexpected end of input")
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) i16() (int16, error) {
	v, err := d.u16()
	return int16(v), err
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		d.off--
		return false, d.fail("invalid bool byte")
	}
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u64()
	if err != nil {
		return "", err
	}
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// count reads a sequence length and rejects counts that cannot fit in the
// remaining input given a minimum element size.
func (d *decoder) count(minElem int) (int, error) {
	n, err := d.u64()
	if err != nil {
		return 0, err
	}
	if minElem > 0 && n > uint64(len(d.buf)-d.off)/uint64(minElem) {
		return 0, d.fail("sequence length exceeds input")
	}
	if n > math.MaxInt32 {
		return 0, d.fail("sequence too long")
	}
	return int(n), nil
}

func (d *decoder) option() (bool, error) {
	tag, err := d.u8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		d.off--
		return false, d.fail("invalid option tag")
	}
}

// nested reads a length-prefixed block and returns a decoder scoped to it.
func (d *decoder) nested() (*decoder, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	start := d.off
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return &decoder{what: d.what, buf: b, base: d.base + start}, nil
}

func (d *decoder) finish() error {
	if d.off != len(d.buf) {
		return d.fail("trailing bytes")
	}
	return nil
}

func (d *decoder) headers() ([]ir.Header, error) {
	n, err := d.count(16)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Header, 0, n)
	for i := 0; i < n; i++ {
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		value, err := d.str()
		if err != nil {
			return nil, err
		}
		out = append(out, ir.Header{Name: name, Value: value})
	}
	return out, nil
}

func (e *encoder) headers(hs []ir.Header) {
	e.u64(uint64(len(hs)))
	for _, h := range hs {
		e.str(h.Name)
		e.str(h.Value)
	}
}
