package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var stdin io.Reader = os.Stdin

// readInput returns text, or the contents of file when text is empty. A file
// of "-" reads standard input.
func readInput(text, file, what string) (string, error) {
	if text != "" && file != "" {
		return "", fmt.Errorf("use either --text or --file for the %s, not both", what)
	}
	var data []byte
	var err error
	switch {
	case text != "":
		data = []byte(text)
	case file == "-":
		data, err = io.ReadAll(stdin)
	case file != "":
		data, err = os.ReadFile(file)
	default:
		return "", fmt.Errorf("one of --text or --file is required for the %s", what)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", what, err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", errors.New(what + " is empty")
	}
	return s, nil
}
