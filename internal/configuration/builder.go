package configuration

import (
	"errors"
	"fmt"
)

var ErrInvalidConfiguration = errors.New("invalid cache configuration")

// Builder accumulates a Configuration. Sections are exposed as pointers and mutated in place;
// Build validates and returns an independent copy.
type Builder struct {
	cfg Configuration
}

func NewBuilder() *Builder { return &Builder{} }

// Read replaces the builder state with a copy of c.
func (b *Builder) Read(c Configuration) *Builder {
	b.cfg = c.Clone()
	return b
}

func (b *Builder) Clustering() *Clustering       { return &b.cfg.Clustering }
func (b *Builder) Locking() *Locking             { return &b.cfg.Locking }
func (b *Builder) Transaction() *Transaction     { return &b.cfg.Transaction }
func (b *Builder) Eviction() *Eviction           { return &b.cfg.Eviction }
func (b *Builder) Expiration() *Expiration       { return &b.cfg.Expiration }
func (b *Builder) Persistence() *Persistence     { return &b.cfg.Persistence }
func (b *Builder) Sites() *Sites                 { return &b.cfg.Sites }
func (b *Builder) Indexing() *Indexing           { return &b.cfg.Indexing }
func (b *Builder) Compatibility() *Compatibility { return &b.cfg.Compatibility }
func (b *Builder) Security() *Security           { return &b.cfg.Security }

func (b *Builder) Template(t bool) *Builder {
	b.cfg.Template = t
	return b
}

func (b *Builder) SimpleCache(s bool) *Builder {
	b.cfg.SimpleCache = s
	return b
}

func (b *Builder) Statistics(s bool) *Builder {
	b.cfg.Statistics = s
	return b
}

func (b *Builder) InvocationBatching(enabled bool) *Builder {
	b.cfg.InvocationBatching = enabled
	return b
}

// AddStore appends a loader or store.
func (b *Builder) AddStore(s Store) *Builder {
	b.cfg.Persistence.Stores = append(b.cfg.Persistence.Stores, s)
	return b
}

// AddBackup appends a backup site; enabled sites are also marked as in use.
func (b *Builder) AddBackup(bk Backup) *Builder {
	b.cfg.Sites.Backups = append(b.cfg.Sites.Backups, bk)
	if bk.Enabled {
		b.cfg.Sites.InUse = append(b.cfg.Sites.InUse, bk.Site)
	}
	return b
}

// Build validates the accumulated state.
func (b *Builder) Build() (Configuration, error) {
	c := b.cfg.Clone()
	if err := validate(c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

func validate(c Configuration) error {
	cl := c.Clustering
	var errs []error
	if cl.CacheMode == "" {
		errs = append(errs, errors.New("cache mode is not set"))
	}
	if cl.L1.Enabled && !cl.CacheMode.IsDistributed() {
		errs = append(errs, fmt.Errorf("L1 is only valid for distributed caches, mode is %s", cl.CacheMode))
	}
	if cl.CacheMode.IsDistributed() && cl.Hash.NumOwners < 1 {
		errs = append(errs, fmt.Errorf("num owners must be at least 1, got %d", cl.Hash.NumOwners))
	}
	if cl.Async.UseReplQueue && cl.CacheMode.IsSynchronous() {
		errs = append(errs, fmt.Errorf("replication queue requires an asynchronous mode, mode is %s", cl.CacheMode))
	}
	if c.InvocationBatching && !c.Transaction.Transactional {
		errs = append(errs, errors.New("invocation batching requires a transactional cache"))
	}
	if c.Transaction.Recovery && !c.Transaction.Transactional {
		errs = append(errs, errors.New("recovery requires a transactional cache"))
	}
	if c.Eviction.Strategy.IsEnabled() && c.Eviction.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("eviction strategy %s requires a positive max-entries", c.Eviction.Strategy))
	}
	if c.SimpleCache {
		switch {
		case cl.CacheMode.IsClustered():
			errs = append(errs, errors.New("simple cache cannot be clustered"))
		case c.Transaction.Transactional:
			errs = append(errs, errors.New("simple cache cannot be transactional"))
		case len(c.Persistence.Stores) > 0:
			errs = append(errs, errors.New("simple cache cannot have stores"))
		case c.Indexing.Index.IsEnabled():
			errs = append(errs, errors.New("simple cache cannot be indexed"))
		}
	}
	seen := map[string]bool{}
	for _, bk := range c.Sites.Backups {
		if seen[bk.Site] {
			errs = append(errs, fmt.Errorf("duplicate backup site %s", bk.Site))
		}
		seen[bk.Site] = true
	}
	for _, s := range c.Persistence.Stores {
		if (s.Kind == KindCustomLoader || s.Kind == KindCustomStore) && s.Class == "" {
			errs = append(errs, fmt.Errorf("%s %s requires a class", s.Kind, s.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}
