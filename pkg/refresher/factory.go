package refresher

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/mountsync/pkg/adminclient"
)

// DefaultLocalMarker identifies the local router's admin address.
const DefaultLocalMarker = "local"

// TaskFactory builds the refresh task for one router.
type TaskFactory interface {
	CreateTask(ctx context.Context, adminAddress string) (*Task, error)
}

// TaskFactoryFunc adapts a function to TaskFactory.
type TaskFactoryFunc func(ctx context.Context, adminAddress string) (*Task, error)

// CreateTask calls f.
func (f TaskFactoryFunc) CreateTask(ctx context.Context, adminAddress string) (*Task, error) {
	return f(ctx, adminAddress)
}

// ClientSource hands out cached admin clients.
type ClientSource interface {
	GetOrCreate(ctx context.Context, adminAddress string) (adminclient.Client, error)
}

// IsLocalAdmin reports whether adminAddress designates the local router.
func IsLocalAdmin(adminAddress, marker string) bool {
	if marker == "" {
		marker = DefaultLocalMarker
	}
	return strings.Contains(adminAddress, marker)
}

// DefaultTaskFactory refreshes the local router in-process and every other
// router through a cached admin client.
type DefaultTaskFactory struct {
	clients     ClientSource
	localMarker string
	local       LocalReloadFunc
}

// NewTaskFactory creates the default task factory. local may be nil, in which
// case local routers fail to refresh.
func NewTaskFactory(clients ClientSource, localMarker string, local LocalReloadFunc) (*DefaultTaskFactory, error) {
	if clients == nil {
		return nil, refreshError(ErrInvalidArgument, "client source is required")
	}
	if strings.TrimSpace(localMarker) == "" {
		localMarker = DefaultLocalMarker
	}
	if local == nil {
		local = func(_ context.Context, adminAddress string) (bool, error) {
			return false, refreshError(ErrNodeFailure, "no local reload hook configured for "+adminAddress)
		}
	}
	return &DefaultTaskFactory{clients: clients, localMarker: localMarker, local: local}, nil
}

// IsLocal reports whether adminAddress is served by the local path.
func (f *DefaultTaskFactory) IsLocal(adminAddress string) bool {
	return IsLocalAdmin(adminAddress, f.localMarker)
}

// CreateTask implements TaskFactory.
func (f *DefaultTaskFactory) CreateTask(ctx context.Context, adminAddress string) (*Task, error) {
	if f.IsLocal(adminAddress) {
		return newLocalTask(adminAddress, f.local), nil
	}
	client, err := f.clients.GetOrCreate(ctx, adminAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheCreation, adminAddress, err)
	}
	return NewTask(adminAddress, client), nil
}
