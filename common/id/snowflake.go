package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. It must be
// called once at startup before New.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	if node == nil && err == nil {
		err = fmt.Errorf("snowflake node not initialized")
	}
	return err
}

// New generates a time-ordered, globally unique int64 ID. Used for
// conversation and message identifiers.
func New() int64 {
	return node.Generate().Int64()
}
