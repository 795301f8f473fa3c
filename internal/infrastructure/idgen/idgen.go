// Package idgen issues the short unique suffixes used in placeholder
// registrant ids.
package idgen

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Generator issues time-ordered, collision-free suffixes. Instances that
// share a database must be configured with distinct node ids.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node id (0..1023)
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("idgen: invalid node id %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// Suffix returns a fresh upper-case base36 suffix
func (g *Generator) Suffix() string {
	return strings.ToUpper(g.node.Generate().Base36())
}
