package fitsheader

import (
	"fmt"
	"os"
	"strings"
)

// WriteMinimal writes a header-only FITS file with the given extra cards.
// Cards are preformatted 80-column records or "KEY = value" shorthands. It is
// used to create fixtures and placeholder frames.
func WriteMinimal(path string, cards ...string) error {
	records := []string{
		formatCard("SIMPLE", "T"),
		formatCard("BITPIX", "16"),
		formatCard("NAXIS", "0"),
	}
	for _, card := range cards {
		records = append(records, normaliseCard(card))
	}
	records = append(records, pad("END"))
	body := strings.Join(records, "")
	if rem := len(body) % blockSize; rem != 0 {
		body += strings.Repeat(" ", blockSize-rem)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write fits header: %w", err)
	}
	return nil
}

func normaliseCard(card string) string {
	if key, value, ok := strings.Cut(card, "="); ok && len(strings.TrimSpace(key)) <= 8 && !strings.HasPrefix(card, "HISTORY") {
		return formatCard(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return pad(card)
}

func formatCard(key, value string) string {
	return pad(fmt.Sprintf("%-8s= %20s", key, value))
}

func pad(s string) string {
	if len(s) >= cardSize {
		return s[:cardSize]
	}
	return s + strings.Repeat(" ", cardSize-len(s))
}
