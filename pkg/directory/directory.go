// Package directory lists the routers known to the cluster, as recorded by the
// shared state store.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidArgument classifies invalid constructor or call arguments.
	ErrInvalidArgument = errors.New("directory invalid argument")
	// ErrUnavailable classifies backend failures while listing routers.
	ErrUnavailable = errors.New("directory unavailable")
)

// NodeDescriptor describes one router. An empty AdminAddress means the router
// has its admin interface disabled.
type NodeDescriptor struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	AdminAddress string `json:"admin_address" yaml:"admin_address"`
}

// Directory returns a snapshot of the known routers.
type Directory interface {
	ListNodes(ctx context.Context) ([]NodeDescriptor, error)
}

// Backend is a Directory owning external connections.
type Backend interface {
	Directory
	HealthCheck(ctx context.Context) error
	Close() error
}

func directoryError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// decodeNode parses a stored router record. Plain strings are accepted as a
// bare admin address so records can be written with redis-cli or etcdctl.
func decodeNode(id string, raw []byte) (NodeDescriptor, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return NodeDescriptor{ID: id, AdminAddress: trimmed}, nil
	}
	var node NodeDescriptor
	if err := json.Unmarshal([]byte(trimmed), &node); err != nil {
		return NodeDescriptor{}, fmt.Errorf("decode router %s: %w", id, err)
	}
	if node.ID == "" {
		node.ID = id
	}
	node.AdminAddress = strings.TrimSpace(node.AdminAddress)
	return node, nil
}

func encodeNode(node NodeDescriptor) (string, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return "", fmt.Errorf("encode router %s: %w", node.ID, err)
	}
	return string(raw), nil
}

func sortNodes(nodes []NodeDescriptor) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
