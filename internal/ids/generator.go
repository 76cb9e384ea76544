// Package ids issues registration and ticket identifiers.
//
// Registration ids are UUIDv7 (48-bit millisecond timestamp + 74 random bits).
// Ticket ids combine a snowflake id (timestamp, node, per-node sequence) with a
// short random suffix so that two processes accidentally sharing a node id
// still do not collide in practice. Both are safe as lookup keys and as QR
// payloads.
package ids

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// DefaultTicketPrefix matches the printed ticket stock.
const DefaultTicketPrefix = "INF25"

// crockford base32 without I, L, O, U; unambiguous when read off a badge.
const suffixAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const suffixLen = 3

// Generator is safe for concurrent use.
type Generator struct {
	node   *snowflake.Node
	prefix string
}

// NewGenerator creates a generator for the given snowflake node (0-1023).
func NewGenerator(nodeID int64, prefix string) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	if prefix == "" {
		prefix = DefaultTicketPrefix
	}
	return &Generator{node: node, prefix: strings.ToUpper(prefix)}, nil
}

// NewRegistrationID returns a fresh registration id.
func (g *Generator) NewRegistrationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTicketID returns a fresh ticket code such as INF25-1M9QZ4K7XW8G-7KD.
func (g *Generator) NewTicketID() string {
	id := g.node.Generate()
	var b strings.Builder
	b.Grow(len(g.prefix) + 20)
	b.WriteString(g.prefix)
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(id.Base36()))
	b.WriteByte('-')
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(suffixAlphabet[rand.IntN(len(suffixAlphabet))])
	}
	return b.String()
}
