// Package loader reads and writes Turtle16 program images.
//
// Three formats are understood:
//
//   - the T16P container: a packed header followed by the program words,
//     optionally snappy-compressed;
//   - hex text: one or more hexadecimal words per line, with an optional
//     "@addr" origin line and comments after ';' or '#';
//   - raw binary: big-endian words loaded at address zero.
package loader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// Magic identifies a T16P container.
const Magic = "T16P"

// Version is the container version written by Save.
const Version = 1

// FlagCompressed marks a container whose body is snappy-compressed.
const FlagCompressed uint16 = 1 << 0

// maxWords is the size of the instruction address space.
const maxWords = 1 << 16

// ErrBadMagic is returned when a container does not start with Magic.
var ErrBadMagic = errors.New("invalid program image magic")

// Header is the packed T16P header. Fields are big-endian.
type Header struct {
	Magic   string `struc:"[4]byte"`
	Version uint16
	Origin  uint16
	Count   uint32
	Flags   uint16
}

// Program is a block of instruction words and the address it loads at.
type Program struct {
	// Origin is the instruction memory address of Words[0].
	Origin uint16

	// Words are the instruction words.
	Words []uint16

	// Comments annotate addresses. They have no effect on execution and
	// only survive the hex format.
	Comments map[uint16]string
}

// End returns the address one past the last word.
func (p *Program) End() int {
	return int(p.Origin) + len(p.Words)
}

// SaveOption configures Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	compress bool
}

// WithCompression makes Save write a snappy-compressed container body.
func WithCompression() SaveOption {
	return func(o *saveOptions) {
		o.compress = true
	}
}

// LoadFile reads a program image. A file starting with the T16P magic is
// a container, a file ending in .hex is hex text and anything else is raw
// binary.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program image: %w", err)
	}

	switch {
	case bytes.HasPrefix(data, []byte(Magic)):
		return ReadImage(bytes.NewReader(data))
	case strings.EqualFold(filepath.Ext(path), ".hex"):
		return ReadHex(bytes.NewReader(data))
	default:
		return ReadRaw(data)
	}
}

// Save writes p to path. The format follows the extension the same way
// LoadFile detects it: .hex gives hex text, .bin raw binary and anything
// else a container.
func Save(path string, p *Program, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex":
		err = WriteHex(&buf, p)
	case ".bin":
		if p.Origin != 0 {
			return fmt.Errorf("raw images load at 0, program origin is 0x%04x", p.Origin)
		}
		err = WriteRaw(&buf, p)
	default:
		err = WriteImage(&buf, p, o.compress)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write program image: %w", err)
	}
	return nil
}

// ReadImage decodes a T16P container.
func ReadImage(r io.Reader) (*Program, error) {
	var h Header
	if err := struc.Unpack(r, &h); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != Version {
		return nil, errors.Errorf("unsupported image version %d", h.Version)
	}
	if int(h.Origin)+int(h.Count) > maxWords {
		return nil, errors.Errorf("image of %d words at 0x%04x overruns instruction memory",
			h.Count, h.Origin)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if h.Flags&FlagCompressed != 0 {
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decompress body")
		}
	}
	if len(body) != 2*int(h.Count) {
		return nil, errors.Errorf("body holds %d bytes, header promises %d words", len(body), h.Count)
	}

	return &Program{
		Origin: h.Origin,
		Words:  unpackWords(body),
	}, nil
}

// WriteImage encodes p as a T16P container.
func WriteImage(w io.Writer, p *Program, compress bool) error {
	if p.End() > maxWords {
		return errors.Errorf("program of %d words at 0x%04x overruns instruction memory",
			len(p.Words), p.Origin)
	}

	h := Header{
		Magic:   Magic,
		Version: Version,
		Origin:  p.Origin,
		Count:   uint32(len(p.Words)),
	}
	body := packWords(p.Words)
	if compress {
		h.Flags |= FlagCompressed
		body = snappy.Encode(nil, body)
	}

	if err := struc.Pack(w, &h); err != nil {
		return errors.Wrap(err, "failed to pack header")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "failed to write body")
	}
	return nil
}

// ReadRaw decodes big-endian words loaded at address zero.
func ReadRaw(data []byte) (*Program, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("raw image has odd length %d", len(data))
	}
	if len(data)/2 > maxWords {
		return nil, fmt.Errorf("raw image of %d words overruns instruction memory", len(data)/2)
	}
	return &Program{Words: unpackWords(data)}, nil
}

// WriteRaw encodes the words of p as big-endian binary.
func WriteRaw(w io.Writer, p *Program) error {
	_, err := w.Write(packWords(p.Words))
	return err
}

// ReadHex parses hex text.
func ReadHex(r io.Reader) (*Program, error) {
	p := &Program{}
	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++
		text, comment := splitComment(scanner.Text())
		fields := strings.Fields(text)

		if len(fields) == 1 && strings.HasPrefix(fields[0], "@") {
			if len(p.Words) > 0 {
				return nil, fmt.Errorf("line %d: origin after the first word", line)
			}
			origin, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "@"), 16, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad origin: %w", line, err)
			}
			p.Origin = uint16(origin)
			continue
		}

		if comment != "" && len(fields) > 0 {
			if p.Comments == nil {
				p.Comments = make(map[uint16]string)
			}
			p.Comments[p.Origin+uint16(len(p.Words))] = comment
		}

		for _, f := range fields {
			word, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(f), "0x"), 16, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad word %q: %w", line, f, err)
			}
			p.Words = append(p.Words, uint16(word))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hex image: %w", err)
	}
	if p.End() > maxWords {
		return nil, fmt.Errorf("hex image overruns instruction memory")
	}

	return p, nil
}

// WriteHex writes p as hex text, one word per line, with its comments.
func WriteHex(w io.Writer, p *Program) error {
	bw := bufio.NewWriter(w)
	if p.Origin != 0 {
		fmt.Fprintf(bw, "@%04x\n", p.Origin)
	}

	for i, word := range p.Words {
		comment, ok := p.Comments[p.Origin+uint16(i)]
		if ok {
			fmt.Fprintf(bw, "%04x ; %s\n", word, comment)
		} else {
			fmt.Fprintf(bw, "%04x\n", word)
		}
	}

	return bw.Flush()
}

// CommentAddresses returns the annotated addresses in ascending order.
func (p *Program) CommentAddresses() []uint16 {
	addrs := make([]uint16, 0, len(p.Comments))
	for addr := range p.Comments {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func splitComment(line string) (text, comment string) {
	i := strings.IndexAny(line, ";#")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

func packWords(words []uint16) []byte {
	buf := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[2*i:], w)
	}
	return buf
}

func unpackWords(data []byte) []uint16 {
	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return words
}
