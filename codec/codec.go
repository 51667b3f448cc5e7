// Package codec implements the Protocol's payload string codec (spec.md
// §4.3, §6.1): splitting/joining a payload into ':'-separated parts with a
// doubled-separator escape and a single-space empty-part encoding, plus
// fixed-width numeric parse/format for the wire's decimal integer fields.
//
// The numeric formatting follows the teacher's x/strconvx host-build
// branch (strconvx_host.go): delegate straight through to strconv rather
// than reinvent digit writers, since this module only ships a host build.
package codec

import (
	"strconv"
	"strings"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// Separator is the Protocol's payload part delimiter (spec.md §6.1).
const Separator = ':'

// emptyPart is how a zero-length part is encoded on the wire.
const emptyPart = " "

// Split divides payload into its ':'-delimited parts, undoubling an escaped
// separator ("::" -> ":") and decoding the single-space empty-part marker
// back to "". If trim is true, each part has ASCII whitespace trimmed
// before the empty-marker check. maxParts <= 0 means unbounded; exceeding
// it is reported as protoerr.MalformedMessage.
func Split(payload string, maxParts int, trim bool) ([]string, error) {
	var parts []string
	var cur strings.Builder
	runes := []rune(payload)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == Separator {
			if i+1 < len(runes) && runes[i+1] == Separator {
				cur.WriteRune(Separator)
				i++
				continue
			}
			parts = append(parts, finishPart(cur.String(), trim))
			cur.Reset()
			if maxParts > 0 && len(parts) >= maxParts {
				return nil, protoerr.New(protoerr.MalformedMessage, "too many payload parts")
			}
			continue
		}
		cur.WriteRune(r)
	}
	parts = append(parts, finishPart(cur.String(), trim))
	if maxParts > 0 && len(parts) > maxParts {
		return nil, protoerr.New(protoerr.MalformedMessage, "too many payload parts")
	}
	return parts, nil
}

func finishPart(s string, trim bool) string {
	if s == emptyPart {
		return ""
	}
	if trim {
		s = strings.TrimFunc(s, isASCIISpace)
	}
	return s
}

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// Join reassembles parts into a single ':'-delimited payload, doubling any
// literal separator and encoding an empty part as a single space. maxLength
// <= 0 means unbounded; exceeding it is reported as protoerr.MalformedMessage.
func Join(parts []string, maxLength int) (string, error) {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteRune(Separator)
		}
		if p == "" {
			b.WriteString(emptyPart)
			continue
		}
		if strings.ContainsRune(p, '\n') {
			return "", protoerr.New(protoerr.TerminatorInPayload, "part contains terminator byte")
		}
		for _, r := range p {
			if r == Separator {
				b.WriteRune(Separator)
			}
			b.WriteRune(r)
		}
	}
	out := b.String()
	if maxLength > 0 && len(out) > maxLength {
		return "", protoerr.New(protoerr.MalformedMessage, "payload exceeds maximum length")
	}
	return out, nil
}

// ParseUint8/16/64 and ParseInt32 parse a fixed-width decimal integer,
// rejecting non-digit input and overflow (spec.md §4.3).

func ParseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, protoerr.New(protoerr.InvalidPayload, "bad uint8: "+s)
	}
	return uint8(v), nil
}

func ParseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, protoerr.New(protoerr.InvalidPayload, "bad uint16: "+s)
	}
	return uint16(v), nil
}

func ParseUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, protoerr.New(protoerr.InvalidPayload, "bad uint64: "+s)
	}
	return v, nil
}

func ParseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, protoerr.New(protoerr.InvalidPayload, "bad int32: "+s)
	}
	return int32(v), nil
}

func FormatUint(v uint64) string { return strconv.FormatUint(v, 10) }
func FormatInt(v int64) string   { return strconv.FormatInt(v, 10) }
