package directory

import (
	"context"
	"strconv"
	"strings"
)

// Static is a fixed list of routers taken from configuration.
type Static struct {
	nodes []NodeDescriptor
}

// NewStatic builds a directory from admin addresses. Empty entries are kept so
// that routers with a disabled admin interface are still listed.
func NewStatic(addresses []string) *Static {
	nodes := make([]NodeDescriptor, 0, len(addresses))
	for i, addr := range addresses {
		nodes = append(nodes, NodeDescriptor{
			ID:           "router-" + strconv.Itoa(i),
			AdminAddress: strings.TrimSpace(addr),
		})
	}
	return &Static{nodes: nodes}
}

// NewStaticNodes builds a directory from full descriptors.
func NewStaticNodes(nodes []NodeDescriptor) *Static {
	return &Static{nodes: append([]NodeDescriptor(nil), nodes...)}
}

// ListNodes returns a copy of the configured routers.
func (s *Static) ListNodes(ctx context.Context) ([]NodeDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]NodeDescriptor(nil), s.nodes...), nil
}

// HealthCheck always succeeds.
func (s *Static) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Static) Close() error { return nil }
