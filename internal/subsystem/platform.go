package subsystem

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	appconfig "github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
)

// PathManager resolves relative-to path names to directories.
type PathManager struct {
	paths map[string]string
}

func NewPathManager(paths map[string]string) *PathManager {
	return &PathManager{paths: paths}
}

// Resolve joins path onto the directory named by relativeTo. An absolute path ignores relativeTo.
func (p *PathManager) Resolve(path, relativeTo string) (string, error) {
	if relativeTo == "" || filepath.IsAbs(path) {
		return path, nil
	}
	base, ok := p.paths[relativeTo]
	if !ok {
		return "", fmt.Errorf("unknown path %s", relativeTo)
	}
	return filepath.Join(base, path), nil
}

// LocalTransactionManager is the platform transaction manager.
type LocalTransactionManager struct{}

func (LocalTransactionManager) Name() string { return "local" }

// BatchTransactionManager backs invocation batching; it needs no platform service.
type BatchTransactionManager struct{}

func (BatchTransactionManager) Name() string { return "batch" }

// SynchronizationRegistry stands in for the platform synchronization registry.
type SynchronizationRegistry struct{}

// RecoveryRegistry tracks the transaction tables of caches with recovery enabled.
type RecoveryRegistry struct {
	mu     sync.Mutex
	tables map[string]*embedded.TxTable
}

func NewRecoveryRegistry() *RecoveryRegistry {
	return &RecoveryRegistry{tables: make(map[string]*embedded.TxTable)}
}

func (r *RecoveryRegistry) Register(name string, t *embedded.TxTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[name] = t
}

func (r *RecoveryRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, name)
}

// InDoubt lists the in doubt transactions of every registered cache, by cache.
func (r *RecoveryRegistry) InDoubt() map[string][]embedded.TxInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]embedded.TxInfo, len(r.tables))
	for n, t := range r.tables {
		if txs := t.InDoubt(); len(txs) > 0 {
			out[n] = txs
		}
	}
	return out
}

func (r *RecoveryRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tables))
	for n := range r.tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DataSource is a JNDI bound data source.
type DataSource struct {
	JNDIName string
	URL      string
}

// SocketBinding is an outbound socket binding.
type SocketBinding struct {
	Name string
	Host string
	Port int
}

func parseSocketBinding(name, addr string) (SocketBinding, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return SocketBinding{}, fmt.Errorf("socket binding %s: %w", name, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return SocketBinding{}, fmt.Errorf("socket binding %s port: %w", name, err)
	}
	return SocketBinding{Name: name, Host: host, Port: p}, nil
}

// InstallPlatform installs the services the server declares in cfg: the naming store, the path
// manager, the transaction services, data sources and outbound socket bindings.
func InstallPlatform(ctx context.Context, services *msc.Container, cfg *appconfig.Config) (*naming.Registry, error) {
	store := naming.NewRegistry()
	install := func(name msc.ServiceName, v any) error {
		_, err := services.AddService(name, msc.NewValueService(v)).SetInitialMode(msc.Passive).Install(ctx)
		return err
	}

	if err := install(naming.StoreServiceName, store); err != nil {
		return nil, err
	}
	if err := install(PathManagerServiceName, NewPathManager(cfg.Paths())); err != nil {
		return nil, err
	}
	if cfg.Platform.TransactionManager {
		if err := install(TransactionManagerServiceName, LocalTransactionManager{}); err != nil {
			return nil, err
		}
		if err := install(SyncRegistryServiceName, SynchronizationRegistry{}); err != nil {
			return nil, err
		}
		if err := install(RecoveryRegistryServiceName, NewRecoveryRegistry()); err != nil {
			return nil, err
		}
	}
	for jndi, url := range cfg.Platform.DataSources {
		ds := &DataSource{JNDIName: naming.Parse(jndi), URL: url}
		if err := install(DataSourceServiceName(jndi), ds); err != nil {
			return nil, err
		}
		if err := store.Bind(ds.JNDIName, ds); err != nil {
			return nil, err
		}
	}
	for name, addr := range cfg.Platform.SocketBindings {
		sb, err := parseSocketBinding(name, addr)
		if err != nil {
			return nil, err
		}
		if err = install(OutboundSocketBindingServiceName(name), sb); err != nil {
			return nil, err
		}
	}
	return store, nil
}
