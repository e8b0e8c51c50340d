package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonSeedsPath = "seeds.json"

// JSONSeeds reads and writes the operator's seed list, a JSON array of
// "host:port" strings, so the file stays easy to edit by hand.
type JSONSeeds struct {
	l    sync.Mutex
	path string
}

// NewJSONSeeds returns the seed file in the base directory.
func NewJSONSeeds(base string) *JSONSeeds {
	return &JSONSeeds{
		path: filepath.Join(base, jsonSeedsPath),
	}
}

// Seeds parses the seed file. A missing file is an error, an empty one is
// not.
func (j *JSONSeeds) Seeds() ([]Addr, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, nil
	}

	var raw []string
	if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&raw); err != nil {
		return nil, err
	}
	return ParseAddrs(raw)
}

// Write replaces the seed file.
func (j *JSONSeeds) Write(addrs []Addr) error {
	j.l.Lock()
	defer j.l.Unlock()

	raw := make([]string, len(addrs))
	for i, a := range addrs {
		raw[i] = a.String()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return err
	}
	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}

// ParseAddrs parses a list of "host:port" strings.
func ParseAddrs(raw []string) ([]Addr, error) {
	res := make([]Addr, 0, len(raw))
	for _, s := range raw {
		a, err := ParseAddr(s)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}
