package jobrun

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"theli/internal/services"
)

// GenericErrorKeyword is matched in addition to the keywords of the GUI source.
const GenericErrorKeyword = "*Error*"

// KeywordTable holds the substrings that mark a log line as an error and the
// exceptions that clear such a match.
type KeywordTable struct {
	Errors     []string
	Exceptions []string
}

// IsError reports whether line contains an error keyword and no exception.
func (t KeywordTable) IsError(line string) bool {
	return containsAny(line, t.Errors) && !containsAny(line, t.Exceptions)
}

func containsAny(line string, keys []string) bool {
	for _, key := range keys {
		if key != "" && strings.Contains(line, key) {
			return true
		}
	}
	return false
}

// LoadKeywordTable reads the errorlist and falseerrorlist statements of the
// THELI GUI source file theliform.ui.h.
func LoadKeywordTable(path string) (KeywordTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return KeywordTable{}, services.Wrap(services.ErrConfiguration, "", "load keyword table", "open GUI source", err)
	}
	defer file.Close()

	table := KeywordTable{Errors: []string{GenericErrorKeyword}}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "errorlist"):
			if statement, ok := quoted(line); ok {
				table.Errors = append(table.Errors, statement)
			}
		case strings.HasPrefix(line, "falseerrorlist"):
			if statement, ok := quoted(line); ok {
				table.Exceptions = append(table.Exceptions, statement)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return KeywordTable{}, services.Wrap(services.ErrConfiguration, "", "load keyword table", "read GUI source", err)
	}
	if len(table.Errors) == 1 || len(table.Exceptions) == 0 {
		return KeywordTable{}, services.Wrap(services.ErrConfiguration, "", "load keyword table",
			fmt.Sprintf("found no error statements in %s", path), nil)
	}
	return table, nil
}

// quoted returns the text between the first and the last double quote with
// escaped quotes resolved.
func quoted(line string) (string, bool) {
	start := strings.Index(line, `"`)
	end := strings.LastIndex(line, `"`)
	if start < 0 || end <= start {
		return "", false
	}
	return strings.ReplaceAll(line[start+1:end], `\"`, `"`), true
}

// DefaultKeywordTable is used when no GUI source file is available.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		Errors: []string{
			GenericErrorKeyword,
			"rror",
			"Segmentation fault",
			"command not found",
			"No such file",
			"Permission denied",
			"cannot open",
			"core dumped",
			"Abort",
			"Illegal",
			"not enough memory",
			"*FATAL*",
		},
		Exceptions: []string{
			"error_",
			"_error",
			"errors.",
			"NumErrors",
			"RMS_ERROR",
			"ERR_",
		},
	}
}
