package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-tempsim/checksum"
)

// ErrInvalidPattern is returned when a textual pattern cannot be parsed.
var ErrInvalidPattern = errors.New("frame: invalid pattern")

type segmentKind uint8

const (
	segFixed segmentKind = iota
	segSkip
	segCapture
	segCounted
)

// Segment is one positional region of a Pattern.
type Segment struct {
	kind segmentKind
	data []byte
	n    int
	name string
}

// Fixed is an anchor that must match the given bytes exactly.
func Fixed(b ...byte) Segment {
	data := make([]byte, len(b))
	copy(data, b)

	return Segment{kind: segFixed, data: data, n: len(b)}
}

// FixedHex is Fixed with the bytes given as text, e.g. "01 03".
func FixedHex(text string) Segment {
	return Fixed(checksum.ParseHex(text)...)
}

// Skip accepts any n bytes without capturing them.
func Skip(n int) Segment {
	return Segment{kind: segSkip, n: n}
}

// Capture captures exactly n bytes. name may be empty.
func Capture(name string, n int) Segment {
	return Segment{kind: segCapture, n: n, name: name}
}

// Counted reads one length byte and captures that many following bytes.
// The length byte itself is not part of the captured group.
func Counted(name string) Segment {
	return Segment{kind: segCounted, name: name}
}

func (s Segment) String() string {
	switch s.kind {
	case segFixed:
		return checksum.FormatHex(s.data)
	case segSkip:
		return strings.TrimSpace(strings.Repeat("?? ", s.n))
	case segCapture:
		return "{" + s.name + ":" + strconv.Itoa(s.n) + "}"
	case segCounted:
		return "{" + s.name + ":*}"
	default:
		return "<unknown>"
	}
}

// Pattern is a positional description of fixed and variable byte regions used to
// validate and extract data from a received frame. A Pattern is immutable and safe
// for concurrent use.
type Pattern struct {
	segments []Segment
	names    map[string]int
	groups   int
	crc      *checksum.Config
}

// NewPattern creates a Pattern from segments. It panics if two capture segments
// share a non-empty name, since the pattern would be ambiguous.
func NewPattern(segments ...Segment) *Pattern {
	p, err := newPattern(segments)
	if err != nil {
		panic(err)
	}

	return p
}

func newPattern(segments []Segment) (*Pattern, error) {
	p := &Pattern{
		segments: make([]Segment, len(segments)),
		names:    make(map[string]int),
	}
	copy(p.segments, segments)

	for _, s := range p.segments {
		if s.kind == segSkip || s.kind == segCapture {
			if s.n < 0 {
				return nil, fmt.Errorf("%w: negative width %d", ErrInvalidPattern, s.n)
			}
		}

		if s.kind != segCapture && s.kind != segCounted {
			continue
		}

		if s.name != "" {
			if _, dup := p.names[s.name]; dup {
				return nil, fmt.Errorf("%w: duplicate group name %q", ErrInvalidPattern, s.name)
			}
			p.names[s.name] = p.groups
		}
		p.groups++
	}

	return p, nil
}

// WithCRC returns a copy of p that additionally requires the two bytes following
// the last segment to hold the CRC16 of the matched bytes under cfg.
func (p *Pattern) WithCRC(cfg checksum.Config) *Pattern {
	cp := *p
	cp.crc = &cfg

	return &cp
}

// Groups returns the number of capture groups.
func (p *Pattern) Groups() int {
	return p.groups
}

// MinLen returns the minimum number of bytes a matching frame occupies.
func (p *Pattern) MinLen() int {
	n := 0
	for _, s := range p.segments {
		switch s.kind {
		case segCounted:
			n++
		default:
			n += s.n
		}
	}
	if p.crc != nil {
		n += 2
	}

	return n
}

func (p *Pattern) String() string {
	parts := make([]string, 0, len(p.segments)+1)
	for _, s := range p.segments {
		if str := s.String(); str != "" {
			parts = append(parts, str)
		}
	}
	if p.crc != nil {
		parts = append(parts, "CRC")
	}

	return strings.Join(parts, " ")
}

// Match scans received for the first offset at which every segment aligns.
// Bytes before that offset are ignored, so leading line noise does not prevent a match.
func (p *Pattern) Match(received []byte) (*Match, bool) {
	minLen := p.MinLen()
	for off := 0; off+minLen <= len(received); off++ {
		if m, ok := p.matchAt(received, off); ok {
			return m, true
		}
	}

	return nil, false
}

// Matches reports whether received contains a frame matching p.
func (p *Pattern) Matches(received []byte) bool {
	_, ok := p.Match(received)
	return ok
}

func (p *Pattern) matchAt(buf []byte, off int) (*Match, bool) {
	pos := off
	var groups [][]byte
	if p.groups > 0 {
		groups = make([][]byte, 0, p.groups)
	}

	for _, s := range p.segments {
		switch s.kind {
		case segFixed:
			if pos+s.n > len(buf) {
				return nil, false
			}
			for i, b := range s.data {
				if buf[pos+i] != b {
					return nil, false
				}
			}
			pos += s.n

		case segSkip:
			if pos+s.n > len(buf) {
				return nil, false
			}
			pos += s.n

		case segCapture:
			if pos+s.n > len(buf) {
				return nil, false
			}
			groups = append(groups, cloneBytes(buf[pos:pos+s.n]))
			pos += s.n

		case segCounted:
			if pos >= len(buf) {
				return nil, false
			}
			n := int(buf[pos])
			pos++
			if pos+n > len(buf) {
				return nil, false
			}
			groups = append(groups, cloneBytes(buf[pos:pos+n]))
			pos += n
		}
	}

	if p.crc != nil {
		if pos+2 > len(buf) {
			return nil, false
		}
		if !checksum.Verify16(buf[off:pos+2], *p.crc) {
			return nil, false
		}
		pos += 2
	}

	return &Match{
		Frame:  Frame(cloneBytes(buf[off:pos])),
		Offset: off,
		Groups: groups,
		names:  p.names,
	}, true
}

// ParsePattern parses the textual pattern form. Tokens are separated by whitespace:
//
//	01        fixed byte (hex)
//	??        any single byte, not captured
//	{name:N}  capture N bytes (name may be empty: {:N})
//	{name:*}  length byte followed by that many captured bytes
//	CRC       trailing Modbus CRC16 (low byte first); must be the last token
func ParsePattern(text string) (*Pattern, error) {
	var segs []Segment
	var fixed []byte
	var crc *checksum.Config

	flush := func() {
		if len(fixed) > 0 {
			segs = append(segs, Fixed(fixed...))
			fixed = fixed[:0]
		}
	}

	tokens := strings.Fields(text)
	for i, tok := range tokens {
		switch {
		case strings.EqualFold(tok, "CRC"):
			if i != len(tokens)-1 {
				return nil, fmt.Errorf("%w: CRC must be the last token", ErrInvalidPattern)
			}
			cfg := checksum.Modbus
			crc = &cfg

		case tok == "??":
			flush()
			segs = append(segs, Skip(1))

		case strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}"):
			flush()
			seg, err := parseGroup(tok[1 : len(tok)-1])
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)

		default:
			if len(tok) != 2 {
				return nil, fmt.Errorf("%w: token %q is not a hex byte", ErrInvalidPattern, tok)
			}
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: token %q is not a hex byte", ErrInvalidPattern, tok)
			}
			fixed = append(fixed, byte(v))
		}
	}
	flush()

	p, err := newPattern(segs)
	if err != nil {
		return nil, err
	}
	p.crc = crc

	return p, nil
}

// MustParsePattern is like ParsePattern but panics on error. It is meant for
// package level pattern tables.
func MustParsePattern(text string) *Pattern {
	p, err := ParsePattern(text)
	if err != nil {
		panic(err)
	}

	return p
}

func parseGroup(body string) (Segment, error) {
	name, width, ok := strings.Cut(body, ":")
	if !ok {
		return Segment{}, fmt.Errorf("%w: group %q needs a width", ErrInvalidPattern, body)
	}

	if width == "*" {
		return Counted(name), nil
	}

	n, err := strconv.Atoi(width)
	if err != nil || n <= 0 {
		return Segment{}, fmt.Errorf("%w: group %q has invalid width", ErrInvalidPattern, body)
	}

	return Capture(name, n), nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
