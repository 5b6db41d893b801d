// Package ids validates entity identifiers and generates readable purchase IDs.
package ids

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/speps/go-hashids/v2"
)

// Valid reports whether s is a well-formed entity ID.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// readableAlphabet omits characters that are easily confused when read aloud.
const readableAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReadableGenerator produces short, unique, human-readable IDs such as
// "PUR-7KQ4M9XW2ZRD". Uniqueness comes from a snowflake node; hashids only
// changes the presentation.
type ReadableGenerator struct {
	prefix string
	node   *snowflake.Node
	hash   *hashids.HashID
}

// NewReadableGenerator creates a generator for the given snowflake node (0-1023).
func NewReadableGenerator(prefix, salt string, nodeID int64) (*ReadableGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}

	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 12
	hd.Alphabet = readableAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("failed to create hashids encoder: %w", err)
	}

	return &ReadableGenerator{prefix: prefix, node: node, hash: h}, nil
}

// Next returns a new readable ID.
func (g *ReadableGenerator) Next() (string, error) {
	encoded, err := g.hash.EncodeInt64([]int64{g.node.Generate().Int64()})
	if err != nil {
		return "", fmt.Errorf("failed to encode readable id: %w", err)
	}
	return g.prefix + "-" + encoded, nil
}

// Decode returns the snowflake behind a readable ID produced by this generator.
func (g *ReadableGenerator) Decode(readable string) (snowflake.ID, error) {
	encoded, ok := strings.CutPrefix(readable, g.prefix+"-")
	if !ok {
		return 0, fmt.Errorf("readable id %q does not start with %s-", readable, g.prefix)
	}
	values, err := g.hash.DecodeInt64WithError(encoded)
	if err != nil {
		return 0, fmt.Errorf("failed to decode readable id %q: %w", readable, err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("readable id %q is malformed", readable)
	}
	return snowflake.ID(values[0]), nil
}
