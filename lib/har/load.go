package har

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrEntryIndex = errors.New("entry index out of range")

type Entries []Entry

// At returns the entry at i, negative indices count from the end.
func (e Entries) At(i int) (Entry, error) {
	if i < 0 {
		i += len(e)
	}
	if i < 0 || i >= len(e) {
		return Entry{}, fmt.Errorf("%w: %d (%d entries)", ErrEntryIndex, i, len(e))
	}
	return e[i], nil
}

func Load(r io.Reader) (*Archive, error) {
	var archive Archive
	err := json.NewDecoder(r).Decode(&archive)
	if err != nil {
		return nil, fmt.Errorf("decode har: %w", err)
	}
	return &archive, nil
}

func LoadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (a *Archive) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(a)
}

func (a *Archive) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = a.Write(f)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
