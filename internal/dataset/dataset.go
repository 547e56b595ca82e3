// Package dataset reads the plain-text instance format: a FABRIKER (or
// SOURCES) section and a GROSSISTER (or SINKS) section, each holding lines
// of the form
//
//	name latitude longitude quantity
//
// Blank lines and lines starting with '#' are ignored.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/htangden/lastbil-optimering/internal/geo"
	"github.com/htangden/lastbil-optimering/internal/network"
)

// Instance is a parsed input file.
type Instance struct {
	Sources []network.Node
	Sinks   []network.Node
}

// SyntaxError reports the offending line of an input file.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("dataset: line %d: %s", e.Line, e.Msg) }

var sections = map[string]network.Role{
	"FABRIKER":   network.Source,
	"SOURCES":    network.Source,
	"GROSSISTER": network.Sink,
	"SINKS":      network.Sink,
}

// Parse reads an instance from r.
func Parse(r io.Reader) (*Instance, error) {
	inst := &Instance{}
	seen := map[network.Role]map[string]bool{network.Source: {}, network.Sink: {}}
	var role network.Role
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if rl, ok := sections[strings.ToUpper(text)]; ok {
			role = rl
			continue
		}
		if role == 0 {
			return nil, &SyntaxError{Line: line, Msg: "record before any section header"}
		}
		n, err := parseRecord(text, role)
		if err != nil {
			return nil, &SyntaxError{Line: line, Msg: err.Error()}
		}
		if seen[role][n.Name] {
			return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("duplicate %s %q", role, n.Name)}
		}
		seen[role][n.Name] = true
		if role == network.Source {
			inst.Sources = append(inst.Sources, n)
		} else {
			inst.Sinks = append(inst.Sinks, n)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read: %w", err)
	}
	return inst, nil
}

// ReadFile parses the instance stored at path.
func ReadFile(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func parseRecord(text string, role network.Role) (network.Node, error) {
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return network.Node{}, fmt.Errorf("want 4 fields (name lat lng quantity), got %d", len(fields))
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || lat < -90 || lat > 90 {
		return network.Node{}, fmt.Errorf("bad latitude %q", fields[1])
	}
	lng, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || lng < -180 || lng > 180 {
		return network.Node{}, fmt.Errorf("bad longitude %q", fields[2])
	}
	qty, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || qty < 0 {
		return network.Node{}, fmt.Errorf("bad quantity %q", fields[3])
	}
	at := geo.Coord{Lat: lat, Lng: lng}
	if role == network.Source {
		return network.NewSource(fields[0], at, qty), nil
	}
	return network.NewSink(fields[0], at, qty), nil
}
