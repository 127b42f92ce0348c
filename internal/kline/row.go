// Package kline
package kline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// RowSize is the fixed on-disk size of one candle row: a 1-byte marker
// followed by five big-endian float64 fields (open, high, low, close, volume).
const RowSize = 41

// Markers follow the msgpack encoding: nil for an empty bucket, fixarray(5)
// for a populated one. A secondary reader in any language with a msgpack
// decoder can therefore parse rows directly.
const (
	markerNil     = 0xC0
	markerFixArr5 = 0x95
	headerSize    = 8
)

// ErrInvalidMarker is returned when a row's marker byte is neither the nil
// marker nor fixarray(5). The row is not decoded; corrupt bytes are never
// guessed at.
var ErrInvalidMarker = errors.New("kline: invalid row marker")

// Row is one OHLCV bucket. Empty means no trades were observed in the bucket;
// the numeric fields are meaningless while Empty is true.
type Row struct {
	Empty  bool
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// EmptyRow returns the row representing a bucket with no trades.
func EmptyRow() Row {
	return Row{Empty: true}
}

// Encode serializes the row into its fixed 41-byte form.
func (r Row) Encode() [RowSize]byte {
	var buf [RowSize]byte
	if r.Empty {
		buf[0] = markerNil
		return buf
	}
	buf[0] = markerFixArr5
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(r.Open))
	binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(r.High))
	binary.BigEndian.PutUint64(buf[17:25], math.Float64bits(r.Low))
	binary.BigEndian.PutUint64(buf[25:33], math.Float64bits(r.Close))
	binary.BigEndian.PutUint64(buf[33:41], math.Float64bits(r.Volume))
	return buf
}

// DecodeRow parses a 41-byte row. It returns ErrInvalidMarker when the marker
// byte is unrecognized.
func DecodeRow(buf []byte) (Row, error) {
	if len(buf) < RowSize {
		return Row{}, fmt.Errorf("kline: short row: %d bytes", len(buf))
	}
	switch buf[0] {
	case markerNil:
		return EmptyRow(), nil
	case markerFixArr5:
		return Row{
			Open:   math.Float64frombits(binary.BigEndian.Uint64(buf[1:9])),
			High:   math.Float64frombits(binary.BigEndian.Uint64(buf[9:17])),
			Low:    math.Float64frombits(binary.BigEndian.Uint64(buf[17:25])),
			Close:  math.Float64frombits(binary.BigEndian.Uint64(buf[25:33])),
			Volume: math.Float64frombits(binary.BigEndian.Uint64(buf[33:41])),
		}, nil
	default:
		return Row{}, fmt.Errorf("%w: 0x%02X", ErrInvalidMarker, buf[0])
	}
}
