// Package retirelog reads and writes T16R retirement logs: a packed header
// followed by a snappy stream of packed frames, one per retired
// instruction.
package retirelog

import (
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/sarchlab/t16sim/emu"
)

// Magic identifies a retirement log.
const Magic = "T16R"

// Version is the log format version.
const Version = 1

// ErrBadMagic is returned when a log does not start with Magic.
var ErrBadMagic = errors.New("invalid retirement log magic")

// Header describes the run a log was taken from.
type Header struct {
	Magic   string `struc:"[4]byte"`
	Version uint16

	// Program names the image that ran. Right-null-padded.
	Program string `struc:"[32]byte"`

	// Traced is 1 when trace replay was enabled.
	Traced uint8
}

// frame is the packed form of one emu.Retirement.
type frame struct {
	PC         uint16
	Word       uint16
	Effects    uint8
	Reg        uint8
	RegValue   uint16
	Flags      uint8
	StoreAddr  uint16
	StoreValue uint16
}

const (
	effectReg uint8 = 1 << iota
	effectFlags
	effectStore
)

const (
	flagN uint8 = 1 << iota
	flagC
	flagZ
	flagV
)

func toFrame(r emu.Retirement) frame {
	f := frame{PC: r.PC, Word: r.Word}
	if r.RegWritten {
		f.Effects |= effectReg
		f.Reg = r.Reg
		f.RegValue = r.RegValue
	}
	if r.FlagsWritten {
		f.Effects |= effectFlags
		f.Flags = packFlags(r.Flags)
	}
	if r.Stored {
		f.Effects |= effectStore
		f.StoreAddr = r.StoreAddr
		f.StoreValue = r.StoreValue
	}
	return f
}

func (f frame) retirement() emu.Retirement {
	r := emu.Retirement{PC: f.PC, Word: f.Word}
	if f.Effects&effectReg != 0 {
		r.RegWritten = true
		r.Reg = f.Reg
		r.RegValue = f.RegValue
	}
	if f.Effects&effectFlags != 0 {
		r.FlagsWritten = true
		r.Flags = unpackFlags(f.Flags)
	}
	if f.Effects&effectStore != 0 {
		r.Stored = true
		r.StoreAddr = f.StoreAddr
		r.StoreValue = f.StoreValue
	}
	return r
}

func packFlags(fl emu.Flags) uint8 {
	var b uint8
	if fl.N {
		b |= flagN
	}
	if fl.C {
		b |= flagC
	}
	if fl.Z {
		b |= flagZ
	}
	if fl.V {
		b |= flagV
	}
	return b
}

func unpackFlags(b uint8) emu.Flags {
	return emu.Flags{
		N: b&flagN != 0,
		C: b&flagC != 0,
		Z: b&flagZ != 0,
		V: b&flagV != 0,
	}
}

// Writer appends retirements to a log.
type Writer struct {
	zw    *snappy.Writer
	count uint64
}

// NewWriter writes the header to w and returns a Writer for the frames.
// Close must be called to flush the stream.
func NewWriter(w io.Writer, program string, traced bool) (*Writer, error) {
	h := &Header{
		Magic:   Magic,
		Version: Version,
		Program: program,
	}
	if traced {
		h.Traced = 1
	}
	if err := struc.Pack(w, h); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{zw: snappy.NewBufferedWriter(w)}, nil
}

// Write appends one retirement.
func (w *Writer) Write(r emu.Retirement) error {
	f := toFrame(r)
	if err := struc.Pack(w.zw, &f); err != nil {
		return errors.Wrap(err, "failed to pack frame")
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() uint64 {
	return w.count
}

// Close flushes the compressed stream. The underlying writer is left open.
func (w *Writer) Close() error {
	return errors.Wrap(w.zw.Close(), "failed to flush log")
}

// Reader reads retirements back from a log.
type Reader struct {
	zr     *snappy.Reader
	Header Header
}

// NewReader reads and checks the header of a log.
func NewReader(r io.Reader) (*Reader, error) {
	l := &Reader{}
	if err := struc.Unpack(r, &l.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if l.Header.Magic != Magic {
		return nil, ErrBadMagic
	}
	if l.Header.Version != Version {
		return nil, errors.Errorf("unsupported log version %d", l.Header.Version)
	}
	l.Header.Program = strings.TrimRight(l.Header.Program, "\x00")
	l.zr = snappy.NewReader(r)
	return l, nil
}

// Traced reports whether the logged run had replay enabled.
func (l *Reader) Traced() bool {
	return l.Header.Traced != 0
}

// Next returns the next retirement, or io.EOF at the end of the log.
func (l *Reader) Next() (emu.Retirement, error) {
	var f frame
	if err := struc.Unpack(l.zr, &f); err != nil {
		if errors.Cause(err) == io.EOF {
			return emu.Retirement{}, io.EOF
		}
		return emu.Retirement{}, errors.Wrap(err, "failed to unpack frame")
	}
	return f.retirement(), nil
}

// ReadAll returns every remaining retirement.
func (l *Reader) ReadAll() ([]emu.Retirement, error) {
	var records []emu.Retirement
	for {
		r, err := l.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
}
