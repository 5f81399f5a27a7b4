package nzb

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parser decodes NZB XML into a Model. It is deliberately stateless; every
// method is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens nzbPath and parses it. Unlike an earlier version of this
// parser, a missing or unreadable file is returned as an error rather than
// terminating the process.
func (p *Parser) ParseFile(nzbPath string) (*Model, error) {
	f, err := os.Open(nzbPath)
	if err != nil {
		return nil, fmt.Errorf("nzb: opening %s: %w", nzbPath, err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse decodes a Model from r.
func (p *Parser) Parse(r io.Reader) (*Model, error) {
	var m Model
	decoder := xml.NewDecoder(r)
	// NZBs commonly declare ISO-8859-1; each Latin-1 byte maps to one rune.
	decoder.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if l := strings.ToLower(label); l != "iso-8859-1" && l != "latin1" {
			return nil, fmt.Errorf("nzb: unsupported charset %q", label)
		}
		b, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return strings.NewReader(string(runes)), nil
	}
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("nzb: decoding: %w", err)
	}
	return &m, nil
}
