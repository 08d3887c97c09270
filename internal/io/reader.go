package io

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// ErrInvalidID reports a line that is not an EudraCT number.
var ErrInvalidID = errors.New("invalid EudraCT number")

// ReadIDs reads EudraCT numbers from a file, one per line. Blank lines and
// lines starting with # are ignored; duplicates are returned once.
func ReadIDs(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ids []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if models.EudraCTPattern.FindString(id) != id {
			return nil, fmt.Errorf("%s:%d: %w: %q", filename, line, ErrInvalidID, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
