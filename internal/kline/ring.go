package kline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/tick-trader/internal/market"
	"github.com/amirphl/tick-trader/internal/tfutils"
)

// ErrOutOfWindow is returned when a trade's bucket falls outside the ring
// window even after shifting. Existing state is untouched; it usually means a
// timestamp-ordering bug upstream.
var ErrOutOfWindow = errors.New("kline: opentime outside ring window")

// Ring is a fixed-length, time-indexed window of OHLCV candles backed by a
// preallocated binary file. Slot 0 is the newest bucket; slot i covers
// headOpenTime - i*timeframe. The in-memory window and the file are synced
// only by an explicit UpdateFile call, so a crash loses at most one flush
// interval of candles.
//
// The file is owned by exactly one writer process. Secondary readers must
// tolerate torn reads and re-validate via ReadHeader.
type Ring struct {
	symbol    string
	timeframe time.Duration
	length    int
	file      *os.File

	// state[0] is the newest bucket (descending opentime).
	state        []Row
	headOpenTime time.Time
}

// Bar is one decoded row with its opentime, as returned by ReadAll.
type Bar struct {
	OpenTime time.Time
	Row      Row
}

// FilePath returns the backing file path for a symbol/timeframe pair.
func FilePath(dir, symbol string, timeframe time.Duration) string {
	return filepath.Join(dir, fmt.Sprintf("kline_%s_%ds", symbol, int(timeframe/time.Second)))
}

func fileSize(length int) int64 {
	return headerSize + int64(length)*RowSize
}

// New opens or creates the ring for symbol at the given timeframe and length.
// A new file is initialized all-Empty with the head at the current time
// floored to the timeframe, and written through immediately. An existing file
// is loaded slot by slot; a corrupt row fails the open.
func New(dir, symbol string, timeframe time.Duration, length int) (*Ring, error) {
	path := FilePath(dir, symbol, timeframe)

	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("kline: open %s: %w", path, err)
	}
	if err := f.Truncate(fileSize(length)); err != nil {
		f.Close()
		return nil, fmt.Errorf("kline: truncate %s: %w", path, err)
	}

	r := &Ring{
		symbol:    symbol,
		timeframe: timeframe,
		length:    length,
		file:      f,
		state:     make([]Row, length),
	}

	if created {
		for i := range r.state {
			r.state[i] = EmptyRow()
		}
		r.headOpenTime = tfutils.NowFloorTime(timeframe)
		if err := r.UpdateFile(); err != nil {
			f.Close()
			return nil, err
		}
		return r, nil
	}

	head, err := r.ReadHeader()
	if err != nil {
		f.Close()
		return nil, err
	}
	r.headOpenTime = head
	for i := 0; i < length; i++ {
		row, err := r.readRowAt(i)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.state[i] = row
	}
	return r, nil
}

// Close closes the backing file.
func (r *Ring) Close() error {
	return r.file.Close()
}

// Symbol returns the ring's symbol.
func (r *Ring) Symbol() string { return r.symbol }

// HeadOpenTime returns the in-memory opentime of slot 0.
func (r *Ring) HeadOpenTime() time.Time { return r.headOpenTime }

// Length returns the number of slots.
func (r *Ring) Length() int { return r.length }

// UpdateOHLCV merges one trade into its bucket, shifting the window forward
// first when the trade opens a newer bucket. Returns ErrOutOfWindow when the
// bucket is older than the window.
func (r *Ring) UpdateOHLCV(trade market.Trade) error {
	opentime := tfutils.FloorTime(trade.Timestamp, r.timeframe)
	r.shift(opentime)
	i, err := r.indexOf(opentime)
	if err != nil {
		return err
	}
	row := r.state[i]
	if row.Empty {
		r.state[i] = Row{
			Open:   trade.Price,
			High:   trade.Price,
			Low:    trade.Price,
			Close:  trade.Price,
			Volume: trade.Amount,
		}
		return nil
	}
	if trade.Price > row.High {
		row.High = trade.Price
	}
	if trade.Price < row.Low {
		row.Low = trade.Price
	}
	row.Close = trade.Price
	row.Volume += trade.Amount
	r.state[i] = row
	return nil
}

// UpdateOHLCVs merges a batch of trades in arrival order.
func (r *Ring) UpdateOHLCVs(trades []market.Trade) error {
	for _, t := range trades {
		if err := r.UpdateOHLCV(t); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFile serializes the full in-memory window to the backing file.
func (r *Ring) UpdateFile() error {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(r.headOpenTime.UnixMilli()))
	if _, err := r.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("kline: write header: %w", err)
	}
	for i := 0; i < r.length; i++ {
		buf := r.state[i].Encode()
		if _, err := r.file.WriteAt(buf[:], headerSize+int64(i)*RowSize); err != nil {
			return fmt.Errorf("kline: write row %d: %w", i, err)
		}
	}
	return nil
}

// UpdateFileWithShift advances the window so the header reflects at least
// head, then writes through. The periodic flush uses this to keep the
// persisted head monotonic even when no trades arrive.
func (r *Ring) UpdateFileWithShift(head time.Time) error {
	r.shift(tfutils.FloorTime(head, r.timeframe))
	return r.UpdateFile()
}

// ReadAll decodes the persisted window oldest-to-newest.
func (r *Ring) ReadAll() ([]Bar, error) {
	head, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, r.length)
	for i := r.length - 1; i >= 0; i-- {
		row, err := r.readRowAt(i)
		if err != nil {
			return nil, err
		}
		bars = append(bars, Bar{
			OpenTime: head.Add(-time.Duration(i) * r.timeframe),
			Row:      row,
		})
	}
	return bars, nil
}

// ReadHeader reads the persisted head opentime without touching in-memory
// state. Secondary readers use it to detect staleness before trusting a read.
func (r *Ring) ReadHeader() (time.Time, error) {
	var buf [headerSize]byte
	if _, err := r.file.ReadAt(buf[:], 0); err != nil {
		return time.Time{}, fmt.Errorf("kline: read header: %w", err)
	}
	ms := int64(binary.BigEndian.Uint64(buf[:]))
	return time.UnixMilli(ms).UTC(), nil
}

func (r *Ring) readRowAt(i int) (Row, error) {
	var buf [RowSize]byte
	if _, err := r.file.ReadAt(buf[:], headerSize+int64(i)*RowSize); err != nil {
		return Row{}, fmt.Errorf("kline: read row %d: %w", i, err)
	}
	return DecodeRow(buf[:])
}

// shift advances the window so nextHead becomes slot 0. A shift larger than
// the window resets every slot to Empty.
func (r *Ring) shift(nextHead time.Time) {
	tfSec := int64(r.timeframe / time.Second)
	n := (nextHead.Unix() - r.headOpenTime.Unix()) / tfSec
	if n <= 0 {
		return
	}
	r.headOpenTime = nextHead
	if n > int64(r.length) {
		for i := range r.state {
			r.state[i] = EmptyRow()
		}
		return
	}
	shift := int(n)
	copy(r.state[shift:], r.state[:r.length-shift])
	for i := 0; i < shift; i++ {
		r.state[i] = EmptyRow()
	}
}

func (r *Ring) indexOf(opentime time.Time) (int, error) {
	tfSec := int64(r.timeframe / time.Second)
	i := (r.headOpenTime.Unix() - opentime.Unix()) / tfSec
	if i < 0 || i >= int64(r.length) {
		return 0, fmt.Errorf("%w: %s (head %s)", ErrOutOfWindow, opentime.Format(time.RFC3339), r.headOpenTime.Format(time.RFC3339))
	}
	return int(i), nil
}
