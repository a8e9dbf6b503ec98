// Package ids issues time-ordered record identifiers.
package ids

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init sets the snowflake node ID. Only the first call has any effect;
// later calls return the first call's error.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New returns a new unique ID as a decimal string. Node 0 is used when
// Init was never called. It panics if Init failed.
func New() string {
	return generate().String()
}

// NewInt64 returns a new unique ID.
func NewInt64() int64 {
	return generate().Int64()
}

func generate() snowflake.ID {
	_ = Init(0)
	if node == nil {
		panic(fmt.Sprintf("ids: snowflake node unavailable: %v", initErr))
	}
	return node.Generate()
}
