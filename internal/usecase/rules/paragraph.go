package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Paragraph is one retrievable unit of the rules text.
type Paragraph struct {
	ID   string
	Text string
}

// ruleNumber matches a leading comprehensive-rules number such as
// "702.19b" or "100.".
var ruleNumber = regexp.MustCompile(`^(\d{3}(?:\.\d+[a-z]?)?)\.?\s`)

// LoadFile reads a plain text rules file. Paragraphs are separated by blank lines.
func LoadFile(path string) ([]Paragraph, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer func() { _ = f.Close() }()

	paragraphs, err := Split(f)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return paragraphs, nil
}

// Split cuts text into paragraphs on blank lines. A paragraph starting with
// a rule number is identified by it, any other by its position.
func Split(r io.Reader) ([]Paragraph, error) {
	var (
		out  []Paragraph
		buf  []string
		scan = bufio.NewScanner(r)
	)
	scan.Buffer(make([]byte, 64*1024), 1024*1024)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, "\n")
		buf = buf[:0]
		id := strconv.Itoa(len(out) + 1)
		if m := ruleNumber.FindStringSubmatch(text); m != nil {
			id = m[1]
		}
		out = append(out, Paragraph{ID: id, Text: text})
	}

	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			flush()
			continue
		}
		buf = append(buf, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	flush()
	return out, nil
}
