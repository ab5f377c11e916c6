package codec

import "github.com/alasdair-cooper/watch-history/internal/ir"

// EncodeViewModel serializes a view snapshot as returned by View.
func EncodeViewModel(v *ir.ViewModel) []byte {
	if v == nil {
		v = &ir.ViewModel{}
	}
	e := encoder{}
	e.u64(uint64(len(v.Log)))
	for _, l := range v.Log {
		e.u32(uint32(l.Level))
		e.str(l.Message)
	}
	e.u64(uint64(len(v.Films)))
	for _, f := range v.Films {
		e.str(f.Title)
		e.u32(uint32(f.Rating))
		e.i16(f.YearWatched)
		e.u8(f.MonthWatched)
	}
	if v.UserInfo == nil {
		e.u8(0)
	} else {
		e.u8(1)
		e.str(v.UserInfo.Name)
		e.str(v.UserInfo.AvatarURL)
	}
	return e.buf
}

// DecodeViewModel parses a view snapshot.
func DecodeViewModel(b []byte) (*ir.ViewModel, error) {
	d := newDecoder("view", b)
	v := &ir.ViewModel{}

	n, err := d.count(12)
	if err != nil {
		return nil, err
	}
	v.Log = make([]ir.LogEntry, 0, n)
	for i := 0; i < n; i++ {
		level, err := d.u32()
		if err != nil {
			return nil, err
		}
		if level > uint32(ir.LogError) {
			return nil, d.fail("unknown log level")
		}
		msg, err := d.str()
		if err != nil {
			return nil, err
		}
		v.Log = append(v.Log, ir.LogEntry{Level: ir.LogLevel(level), Message: msg})
	}

	n, err = d.count(15)
	if err != nil {
		return nil, err
	}
	v.Films = make([]ir.WatchedFilm, 0, n)
	for i := 0; i < n; i++ {
		f := ir.WatchedFilm{}
		if f.Title, err = d.str(); err != nil {
			return nil, err
		}
		rating, err := d.u32()
		if err != nil {
			return nil, err
		}
		if rating > uint32(ir.RatingGoat) {
			return nil, d.fail("unknown rating")
		}
		f.Rating = ir.Rating(rating)
		if f.YearWatched, err = d.i16(); err != nil {
			return nil, err
		}
		if f.MonthWatched, err = d.u8(); err != nil {
			return nil, err
		}
		v.Films = append(v.Films, f)
	}

	some, err := d.option()
	if err != nil {
		return nil, err
	}
	if some {
		u := &ir.UserInfo{}
		if u.Name, err = d.str(); err != nil {
			return nil, err
		}
		if u.AvatarURL, err = d.str(); err != nil {
			return nil, err
		}
		v.UserInfo = u
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return v, nil
}
