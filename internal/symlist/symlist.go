// Completion: 100% - Symbol list reader complete
package symlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Symbol list files hold one symbol per line. Only the first word of a
// line is used. Empty lines and lines starting with ';' or '#' are skipped.

// Entry is one symbol and where it was read from
type Entry struct {
	Name string
	File string
	Line int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Name)
}

// IsSkipped returns true for words that do not name a symbol
func IsSkipped(word string) bool {
	return word == "" || word[0] == ';' || word[0] == '#'
}

// Read returns the symbols listed in r, in order. file is recorded in
// each Entry.
func Read(r io.Reader, file string) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || IsSkipped(fields[0]) {
			continue
		}
		entries = append(entries, Entry{Name: fields[0], File: file, Line: lineNum})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNum+1, err)
	}
	return entries, nil
}

// ReadFile reads the symbol list at path
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, path)
}
