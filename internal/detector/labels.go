package detector

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Labels maps class ids to names.
type Labels []string

// LoadLabels reads one label per line. Blank lines keep their index.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path) //nolint:gosec // G304: label file path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseLabels(f)
}

// ParseLabels reads labels from r.
func ParseLabels(r io.Reader) (Labels, error) {
	var labels Labels
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}

// Name returns the label for id, or the numeric id when unknown or blank.
func (l Labels) Name(id int) string {
	if id >= 0 && id < len(l) && l[id] != "" && l[id] != "???" {
		return l[id]
	}
	return strconv.Itoa(id)
}
