package common

import "fmt"

// NodeError is a JSON-RPC error object returned by the node itself, as
// opposed to a transport failure.
type NodeError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}
