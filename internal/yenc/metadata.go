// Package yenc decodes yEnc-encoded Usenet article bodies: the =ybegin /
// =ypart / =yend framing, escape-byte unescaping, and CRC32 verification.
package yenc

import (
	"strconv"
	"strings"
)

// ErrHeaderNotFound is returned when no "=ybegin" line is seen in the input.
type ErrHeaderNotFound struct{}

func (ErrHeaderNotFound) Error() string { return "yenc: no =ybegin header found" }

// Metadata holds everything carried by the =ybegin / =ypart / =yend lines of
// one encoded part.
type Metadata struct {
	Line     int
	Size     int64
	Name     string
	Part     int
	Total    int
	PartSize int64

	// Begin is the 0-based offset of the part in the final assembled file
	// (yEnc's 1-based "begin" minus one). End is yEnc's 1-based inclusive
	// "end" kept as-is, which equals the 0-based exclusive end. Both are 0
	// when the part carries no =ypart line (single-part encode).
	Begin int64
	End   int64

	// CRC32 is the whole-file checksum from =yend (multi-part yEnc only
	// carries this on the last part, if at all). PCRC32 is the per-part
	// checksum, preferred when present.
	CRC32  uint32
	PCRC32 uint32
	hasCRC bool
}

// ExpectedCRC returns the checksum this part should be verified against,
// preferring the per-part pcrc32 over the whole-file crc32, and reports
// whether any checksum was present at all.
func (m Metadata) ExpectedCRC() (uint32, bool) {
	if m.PCRC32 != 0 {
		return m.PCRC32, true
	}
	if m.CRC32 != 0 {
		return m.CRC32, true
	}
	return 0, false
}

func parseYBeginLine(line string, m *Metadata) {
	kv := parseKeyValues(strings.TrimPrefix(line, "=ybegin"))
	if v, ok := kv["line"]; ok {
		m.Line, _ = strconv.Atoi(v)
	}
	if v, ok := kv["size"]; ok {
		m.Size, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := kv["part"]; ok {
		m.Part, _ = strconv.Atoi(v)
	}
	if v, ok := kv["total"]; ok {
		m.Total, _ = strconv.Atoi(v)
	}
	if v, ok := kv["name"]; ok {
		m.Name = v
	}
}

func parseYPartLine(line string, m *Metadata) {
	kv := parseKeyValues(strings.TrimPrefix(line, "=ypart"))
	if v, ok := kv["begin"]; ok {
		begin, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			// yEnc offsets are 1-based; disk offsets are 0-based.
			m.Begin = begin - 1
		}
	}
	if v, ok := kv["end"]; ok {
		end, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			m.End = end
		}
	}
	if m.End > m.Begin {
		m.PartSize = m.End - m.Begin
	}
}

func parseYEndLine(line string, m *Metadata) {
	kv := parseKeyValues(strings.TrimPrefix(line, "=yend"))
	if v, ok := kv["size"]; ok {
		// =yend's size is the part size for multi-part encodes; keep it
		// only as a fallback when =ypart never set PartSize.
		if m.PartSize == 0 {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				m.PartSize = n
			}
		}
	}
	if v, ok := kv["crc32"]; ok {
		n, err := strconv.ParseUint(v, 16, 32)
		if err == nil {
			m.CRC32 = uint32(n)
			m.hasCRC = true
		}
	}
	if v, ok := kv["pcrc32"]; ok {
		n, err := strconv.ParseUint(v, 16, 32)
		if err == nil {
			m.PCRC32 = uint32(n)
			m.hasCRC = true
		}
	}
}

// parseKeyValues parses the "key=value key2=value2 name=some file.bin" shape
// common to all three yEnc header lines, where a trailing "name=" value may
// itself contain spaces and must run to end of line.
func parseKeyValues(s string) map[string]string {
	result := make(map[string]string)
	s = strings.TrimSpace(s)

	if nameIdx := strings.Index(s, " name="); nameIdx >= 0 {
		result["name"] = s[nameIdx+len(" name="):]
		s = s[:nameIdx]
	} else if strings.HasPrefix(s, "name=") {
		result["name"] = s[len("name="):]
		return result
	}

	for _, field := range strings.Fields(s) {
		if eq := strings.IndexByte(field, '='); eq > 0 {
			result[field[:eq]] = field[eq+1:]
		}
	}
	return result
}
