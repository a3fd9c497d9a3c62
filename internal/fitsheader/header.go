// Package fitsheader reads the keyword cards of FITS headers. It understands
// only the fixed 2880-byte block and 80-character card layout needed to locate
// markers such as HISTORY entries and filter keywords; image data is skipped.
package fitsheader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	blockSize = 2880
	cardSize  = 80
	// maxBlocks bounds the header scan for files that never terminate it.
	maxBlocks = 1024
)

// Card is one header record.
type Card struct {
	Key     string
	Value   string
	Comment string
	Raw     string
}

// Header is the ordered card list of one HDU.
type Header struct {
	Cards []Card
}

// ErrNoEnd reports a header that was not terminated by an END card.
var ErrNoEnd = errors.New("fits header missing END card")

// ReadPrimary reads the primary header of the FITS file at path.
func ReadPrimary(path string) (Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer file.Close()
	return Read(file)
}

// Read parses a header from r, stopping at the END card.
func Read(r io.Reader) (Header, error) {
	var header Header
	block := make([]byte, blockSize)
	for n := 0; n < maxBlocks; n++ {
		if _, err := io.ReadFull(r, block); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return header, ErrNoEnd
			}
			return header, err
		}
		if n == 0 && !strings.HasPrefix(string(block[:cardSize]), "SIMPLE") && !strings.HasPrefix(string(block[:cardSize]), "XTENSION") {
			return header, fmt.Errorf("not a FITS header")
		}
		for off := 0; off < blockSize; off += cardSize {
			card := parseCard(string(block[off : off+cardSize]))
			if card.Key == "END" {
				return header, nil
			}
			if card.Key == "" && strings.TrimSpace(card.Raw) == "" {
				continue
			}
			header.Cards = append(header.Cards, card)
		}
	}
	return header, ErrNoEnd
}

// Get returns the value of the first card with key.
func (h Header) Get(key string) (string, bool) {
	for _, card := range h.Cards {
		if card.Key == key {
			return card.Value, true
		}
	}
	return "", false
}

// Float parses the value of key as a number.
func (h Header) Float(key string) (float64, bool) {
	value, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// History joins all HISTORY entries.
func (h Header) History() []string {
	var out []string
	for _, card := range h.Cards {
		if card.Key == "HISTORY" {
			out = append(out, card.Value)
		}
	}
	return out
}

// HistoryContains reports whether any HISTORY entry contains needle.
func (h Header) HistoryContains(needle string) bool {
	for _, entry := range h.History() {
		if strings.Contains(entry, needle) {
			return true
		}
	}
	return false
}

func parseCard(raw string) Card {
	card := Card{Raw: raw}
	key := strings.TrimSpace(raw[:8])
	card.Key = key
	switch key {
	case "HISTORY", "COMMENT", "":
		card.Value = strings.TrimSpace(raw[8:])
		return card
	}
	if len(raw) < 10 || raw[8:10] != "= " {
		card.Value = strings.TrimSpace(raw[8:])
		return card
	}
	card.Value, card.Comment = splitValue(raw[10:])
	return card
}

func splitValue(field string) (string, string) {
	trimmed := strings.TrimLeft(field, " ")
	if strings.HasPrefix(trimmed, "'") {
		var b strings.Builder
		for i := 1; i < len(trimmed); i++ {
			ch := trimmed[i]
			if ch == '\'' {
				if i+1 < len(trimmed) && trimmed[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				rest := trimmed[i+1:]
				_, comment, _ := strings.Cut(rest, "/")
				return strings.TrimRight(b.String(), " "), strings.TrimSpace(comment)
			}
			b.WriteByte(ch)
		}
		return strings.TrimRight(b.String(), " "), ""
	}
	value, comment, _ := strings.Cut(trimmed, "/")
	return strings.TrimSpace(value), strings.TrimSpace(comment)
}
