package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const defaultNodeID = 1

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init sets the snowflake node for this process. Each replica must use a distinct node ID.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// New returns a time-ordered int64 ID. Falls back to node 1 when Init was never called,
// which keeps tests and one-off tools from panicking.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(defaultNodeID)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}

// NewString returns New formatted in base 10, used for turn identifiers on the wire.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}
