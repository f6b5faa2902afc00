package subsystem

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

const (
	OpAddAlias    = "add-alias"
	OpRemoveAlias = "remove-alias"
)

// Command parameters.
const (
	ParamTxInternalID = "tx-internal-id"
	ParamSiteName     = "site-name"
	ParamMigratorName = "migrator-name"
	ParamValue        = "value"
	ParamCacheName    = "cache-name"
	ParamParameters   = "parameters"
	ParamSchedule     = "schedule"
	ParamCode         = "code"
	ParamCount        = "count"
	ParamSince        = "since"
	ParamCategory     = "category"
	ParamLevel        = "level"
	ParamCounterName  = "counter-name"
	ParamDelta        = "delta"
	ParamExpect       = "expect"
	ParamUpdate       = "update"
)

const hotrodMigrator = "hotrod"

var (
	ErrUnavailableCache     = errors.New("unavailable cache")
	ErrUnavailableContainer = errors.New("unavailable cache container")
)

type commandFunc func(ctx context.Context, c *Controller, t target, op model.Operation) (model.Value, error)

// command is a runtime operation of a cache or container resource.
type command struct {
	params []string
	fn     commandFunc
}

func commandNames(cmds map[string]command) []string { return sortedKeys(cmds) }

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// runtimeOperation runs a cache or container command. Command errors become a failed result.
func (c *Controller) runtimeOperation(oc *operationContext, op model.Operation) (model.Result, error) {
	t := classify(op.Address)
	var cmds map[string]command
	switch t.kind {
	case kindCache:
		cmds = cacheCommands
	case kindContainer:
		cmds = containerCommands
	}
	cmd, ok := cmds[op.Name]
	if !ok {
		return model.Result{}, fmt.Errorf("%w %s for %s", ErrUnknownOp, op.Name, op.Address)
	}
	if _, err := c.model.Read(op.Address); err != nil {
		return model.Result{}, err
	}
	for _, p := range cmd.params {
		if !op.Param(p).IsDefined() {
			return model.Result{}, fmt.Errorf("missing parameter %s", p)
		}
	}
	v, err := cmd.fn(oc.ctx, c, t, op)
	if err != nil {
		c.logger.Debug().Err(err).Str("operation", op.String()).Msg("runtime operation failed")
		return model.Failure("failed to invoke operation: %v", err), nil
	}
	return model.Success(v), nil
}

// cache returns the cache of a cache service that has started at least once.
func (c *Controller) cache(t target) (*embedded.Cache, error) {
	v, err := c.services.Value(CacheServiceName(t.container, t.name))
	if err != nil {
		return nil, fmt.Errorf("%w %s", ErrUnavailableCache, t.name)
	}
	ec, ok := v.(*embedded.Cache)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnavailableCache, t.name)
	}
	return ec, nil
}

func (c *Controller) manager(t target) (*embedded.CacheManager, error) {
	v, err := c.services.Value(ContainerServiceName(t.container))
	if err != nil {
		return nil, fmt.Errorf("%w %s", ErrUnavailableContainer, t.container)
	}
	m, ok := v.(*embedded.CacheManager)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnavailableContainer, t.container)
	}
	return m, nil
}

func onCache(fn func(context.Context, *embedded.Cache, model.Operation) (model.Value, error)) commandFunc {
	return func(ctx context.Context, c *Controller, t target, op model.Operation) (model.Value, error) {
		ec, err := c.cache(t)
		if err != nil {
			return model.Value{}, err
		}
		return fn(ctx, ec, op)
	}
}

func onManager(fn func(context.Context, *embedded.CacheManager, model.Operation) (model.Value, error)) commandFunc {
	return func(ctx context.Context, c *Controller, t target, op model.Operation) (model.Value, error) {
		m, err := c.manager(t)
		if err != nil {
			return model.Value{}, err
		}
		return fn(ctx, m, op)
	}
}

func resetStatistics(group embedded.StatsGroup) command {
	return command{fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.Value{}, ec.ResetStatistics(group)
	})}
}

func txCommand(fn func(*embedded.TxTable, int64) (model.Value, error)) command {
	return command{
		params: []string{ParamTxInternalID},
		fn: onCache(func(_ context.Context, ec *embedded.Cache, op model.Operation) (model.Value, error) {
			id, err := op.Param(ParamTxInternalID).AsLong()
			if err != nil {
				return model.Value{}, err
			}
			return fn(ec.Transactions(), id)
		}),
	}
}

func siteCommand(fn func(*embedded.XSiteAdmin, string) (string, error)) command {
	return command{
		params: []string{ParamSiteName},
		fn: onCache(func(_ context.Context, ec *embedded.Cache, op model.Operation) (model.Value, error) {
			s, err := fn(ec.XSite(), op.Param(ParamSiteName).AsString())
			if err != nil {
				return model.Value{}, err
			}
			return model.StringValue(s), nil
		}),
	}
}

func backupCommand(fn func(*embedded.CacheManager, string) (string, error)) command {
	return command{
		params: []string{ParamSiteName},
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			s, err := fn(m, op.Param(ParamSiteName).AsString())
			if err != nil {
				return model.Value{}, err
			}
			return model.StringValue(s), nil
		}),
	}
}

func stringMap(m map[string]string) model.Value {
	out := model.NewObject()
	for _, k := range sortedKeys(m) {
		out.Set(k, model.StringValue(m[k]))
	}
	return out
}

// migrate checks that a rolling upgrade can run against the cache: the migrator must be known and
// the cache must have a remote store pointing at the source cluster.
func migrate(ec *embedded.Cache, op model.Operation) error {
	if m := op.Param(ParamMigratorName).AsString(); m != hotrodMigrator {
		return fmt.Errorf("unknown migrator %s", m)
	}
	for _, s := range ec.Configuration().Persistence.Stores {
		if s.Remote != nil {
			return nil
		}
	}
	return fmt.Errorf("cache %s has no remote store", ec.Name())
}

var cacheCommands = map[string]command{
	"reset-statistics":              resetStatistics(embedded.StatsCache),
	"reset-transaction-statistics":  resetStatistics(embedded.StatsTransaction),
	"reset-invalidation-statistics": resetStatistics(embedded.StatsInvalidation),
	"reset-activation-statistics":   resetStatistics(embedded.StatsActivation),
	"reset-passivation-statistics":  resetStatistics(embedded.StatsPassivation),
	"reset-rpc-manager-statistics":  resetStatistics(embedded.StatsRPCManager),
	"reset-loader-statistics":       resetStatistics(embedded.StatsLoader),

	"clear-cache": {fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.Value{}, ec.Clear()
	})},
	"flush-cache": {fn: onCache(func(ctx context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.Value{}, ec.Flush(ctx)
	})},
	"start-cache": {fn: startCache},
	"stop-cache": {fn: onCache(func(ctx context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.Value{}, ec.Stop(ctx)
	})},
	"shutdown-cache": {fn: onCache(func(ctx context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.Value{}, ec.Shutdown(ctx)
	})},

	"tx-list": {fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		out := model.ListValue()
		for _, tx := range ec.Transactions().InDoubt() {
			o := model.NewObject()
			o.Set("internal-id", model.LongValue(tx.InternalID))
			o.Set("xid", model.StringValue(tx.Xid))
			o.Set("status", model.StringValue(string(tx.Status)))
			o.Set("prepared", model.StringValue(tx.Prepared.Format(time.RFC3339)))
			out.Add(o)
		}
		return out, nil
	})},
	"tx-force-commit": txCommand(func(tt *embedded.TxTable, id int64) (model.Value, error) {
		s, err := tt.ForceCommit(id)
		return model.StringValue(s), err
	}),
	"tx-force-rollback": txCommand(func(tt *embedded.TxTable, id int64) (model.Value, error) {
		s, err := tt.ForceRollback(id)
		return model.StringValue(s), err
	}),
	"tx-forget": txCommand(func(tt *embedded.TxTable, id int64) (model.Value, error) {
		return model.Value{}, tt.Forget(id)
	}),

	"bring-site-online":    siteCommand((*embedded.XSiteAdmin).BringSiteOnline),
	"take-site-offline":    siteCommand((*embedded.XSiteAdmin).TakeSiteOffline),
	"push-state":           siteCommand((*embedded.XSiteAdmin).PushState),
	"cancel-push-state":    siteCommand((*embedded.XSiteAdmin).CancelPushState),
	"cancel-receive-state": siteCommand((*embedded.XSiteAdmin).CancelReceiveState),
	"site-status": siteCommand(func(x *embedded.XSiteAdmin, site string) (string, error) {
		st, err := x.SiteStatus(site)
		return string(st), err
	}),
	"push-state-status": {fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return stringMap(ec.XSite().PushStateStatus()), nil
	})},
	"get-sending-site": {fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		if s := ec.XSite().SendingSite(); s != "" {
			return model.StringValue(s), nil
		}
		return model.Value{}, nil
	})},
	"clear-push-state-status": {fn: onCache(func(_ context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		return model.StringValue(ec.XSite().ClearPushStateStatus()), nil
	})},

	"synchronize-data": {
		params: []string{ParamMigratorName},
		fn: onCache(func(ctx context.Context, ec *embedded.Cache, op model.Operation) (model.Value, error) {
			if err := migrate(ec, op); err != nil {
				return model.Value{}, err
			}
			n, err := ec.Size(ctx)
			if err != nil {
				return model.Value{}, err
			}
			return model.LongValue(int64(n)), nil
		}),
	},
	"disconnect-source": {
		params: []string{ParamMigratorName},
		fn: onCache(func(_ context.Context, ec *embedded.Cache, op model.Operation) (model.Value, error) {
			return model.Value{}, migrate(ec, op)
		}),
	},
	"mass-reindex": {fn: onCache(func(ctx context.Context, ec *embedded.Cache, _ model.Operation) (model.Value, error) {
		_, err := ec.Reindex(ctx)
		return model.Value{}, err
	})},
	"cache-rebalance": {
		params: []string{ParamValue},
		fn: onCache(func(_ context.Context, ec *embedded.Cache, op model.Operation) (model.Value, error) {
			b, err := op.Param(ParamValue).AsBool()
			if err != nil {
				return model.Value{}, err
			}
			ec.SetRebalancing(b)
			return model.Value{}, nil
		}),
	},
}

// startCache brings up a cache whose service is down, then restarts a cache stopped by stop-cache.
func startCache(ctx context.Context, c *Controller, t target, _ model.Operation) (model.Value, error) {
	name := CacheServiceName(t.container, t.name)
	ctl, ok := c.services.Service(name)
	if !ok {
		return model.Value{}, fmt.Errorf("%w %s", ErrUnavailableCache, t.name)
	}
	if ctl.State() != msc.StateUp {
		if err := c.services.SetMode(ctx, name, msc.Active); err != nil {
			return model.Value{}, err
		}
	}
	ec, err := c.cache(t)
	if err != nil {
		return model.Value{}, err
	}
	if ec.Status() == embedded.StatusRunning {
		return model.Value{}, nil
	}
	return model.Value{}, ec.Start(ctx)
}

func counterCommand(params []string, fn func(*embedded.CounterManager, string, model.Operation) (model.Value, error)) command {
	return command{
		params: append([]string{ParamCounterName}, params...),
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			return fn(m.Counters(), op.Param(ParamCounterName).AsString(), op)
		}),
	}
}

func counterValue(n int64, err error) (model.Value, error) {
	if err != nil {
		return model.Value{}, err
	}
	return model.LongValue(n), nil
}

var containerCommands = map[string]command{
	"task-list": {fn: onManager(func(_ context.Context, m *embedded.CacheManager, _ model.Operation) (model.Value, error) {
		out := model.ListValue()
		for _, ti := range m.Tasks().Tasks() {
			o := model.NewObject()
			o.Set("name", model.StringValue(ti.Name))
			o.Set("type", model.StringValue(ti.Type))
			o.Set("mode", model.StringValue(ti.Mode))
			o.Set("parameters", model.StringList(ti.Parameters...))
			o.Set("allowed-role", model.StringValue(ti.AllowedRole))
			out.Add(o)
		}
		return out, nil
	})},
	"task-execute": {params: []string{schema.Name}, fn: onManager(executeTask)},
	"task-status": {fn: onManager(func(_ context.Context, m *embedded.CacheManager, _ model.Operation) (model.Value, error) {
		out := model.ListValue()
		for _, e := range m.Tasks().Running() {
			o := model.NewObject()
			o.Set("id", model.StringValue(e.ID))
			o.Set("name", model.StringValue(e.Name))
			o.Set("start", model.StringValue(e.Start.Format(time.RFC3339)))
			o.Set("where", model.StringValue(e.Where))
			o.Set("what", model.StringValue(e.What))
			out.Add(o)
		}
		return out, nil
	})},
	"script-add": {
		params: []string{schema.Name, ParamCode},
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			return model.Value{}, m.Tasks().AddScript(op.Param(schema.Name).AsString(), op.Param(ParamCode).AsString())
		}),
	},
	"script-cat": {
		params: []string{schema.Name},
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			s, err := m.Tasks().Script(op.Param(schema.Name).AsString())
			if err != nil {
				return model.Value{}, err
			}
			return model.StringValue(s.Body), nil
		}),
	},
	"script-remove": {
		params: []string{schema.Name},
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			return model.Value{}, m.Tasks().RemoveScript(op.Param(schema.Name).AsString())
		}),
	},
	"read-event-log": {fn: onManager(readEventLog)},
	"cluster-rebalance": {
		params: []string{ParamValue},
		fn: onManager(func(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
			b, err := op.Param(ParamValue).AsBool()
			if err != nil {
				return model.Value{}, err
			}
			m.SetRebalancing(b)
			return model.Value{}, nil
		}),
	},

	"backup-bring-site-online":  backupCommand((*embedded.CacheManager).BringSiteOnline),
	"backup-take-site-offline":  backupCommand((*embedded.CacheManager).TakeSiteOffline),
	"backup-push-state":         backupCommand((*embedded.CacheManager).PushState),
	"backup-cancel-push-state":  backupCommand((*embedded.CacheManager).CancelPushState),
	"backup-site-status": backupCommand(func(m *embedded.CacheManager, site string) (string, error) {
		st, err := m.SiteStatus(site)
		return string(st), err
	}),
	"backup-push-state-status": {fn: onManager(func(_ context.Context, m *embedded.CacheManager, _ model.Operation) (model.Value, error) {
		return stringMap(m.PushStateStatus()), nil
	})},
	"backup-clear-push-state-status": {fn: onManager(func(_ context.Context, m *embedded.CacheManager, _ model.Operation) (model.Value, error) {
		return model.StringValue(m.ClearPushStateStatus()), nil
	})},

	"counter-reset": counterCommand(nil, func(cm *embedded.CounterManager, name string, _ model.Operation) (model.Value, error) {
		return model.Value{}, cm.Reset(name)
	}),
	"counter-remove": counterCommand(nil, func(cm *embedded.CounterManager, name string, _ model.Operation) (model.Value, error) {
		return model.Value{}, cm.Remove(name)
	}),
	"counter-increment": counterCommand(nil, func(cm *embedded.CounterManager, name string, _ model.Operation) (model.Value, error) {
		return counterValue(cm.Increment(name))
	}),
	"counter-decrement": counterCommand(nil, func(cm *embedded.CounterManager, name string, _ model.Operation) (model.Value, error) {
		return counterValue(cm.Decrement(name))
	}),
	"counter-add": counterCommand([]string{ParamDelta}, func(cm *embedded.CounterManager, name string, op model.Operation) (model.Value, error) {
		delta, err := op.Param(ParamDelta).AsLong()
		if err != nil {
			return model.Value{}, err
		}
		return counterValue(cm.Add(name, delta))
	}),
	"counter-compare-and-set": counterCommand([]string{ParamExpect, ParamUpdate}, func(cm *embedded.CounterManager, name string, op model.Operation) (model.Value, error) {
		expect, err := op.Param(ParamExpect).AsLong()
		if err != nil {
			return model.Value{}, err
		}
		update, err := op.Param(ParamUpdate).AsLong()
		if err != nil {
			return model.Value{}, err
		}
		ok, err := cm.CompareAndSet(name, expect, update)
		if err != nil {
			return model.Value{}, err
		}
		return model.BoolValue(ok), nil
	}),
}

// executeTask runs a task now, or schedules it when a cron schedule is given.
func executeTask(ctx context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
	name := op.Param(schema.Name).AsString()
	cacheName := op.Param(ParamCacheName).AsString()
	params := map[string]string{}
	p := op.Param(ParamParameters)
	for _, k := range p.Keys() {
		params[k] = p.Get(k).AsString()
	}
	if spec := op.Param(ParamSchedule).AsString(); spec != "" {
		id, err := m.Tasks().Schedule(spec, name, cacheName, params)
		if err != nil {
			return model.Value{}, err
		}
		return model.StringValue(id), nil
	}
	res, err := m.Tasks().Execute(ctx, name, cacheName, params)
	if err != nil {
		return model.Value{}, err
	}
	return toValue(res), nil
}

func readEventLog(_ context.Context, m *embedded.CacheManager, op model.Operation) (model.Value, error) {
	f := embedded.EventFilter{
		Category: embedded.EventCategory(op.Param(ParamCategory).AsString()),
		Level:    embedded.EventLevel(op.Param(ParamLevel).AsString()),
	}
	if v := op.Param(ParamCount); v.IsDefined() {
		n, err := v.AsInt()
		if err != nil {
			return model.Value{}, err
		}
		f.Count = n
	}
	if s := op.Param(ParamSince).AsString(); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return model.Value{}, fmt.Errorf("since: %w", err)
		}
		f.Since = since
	}
	out := model.ListValue()
	for _, e := range m.Events().Read(f) {
		o := model.NewObject()
		o.Set("when", model.StringValue(e.When.Format(time.RFC3339)))
		o.Set("level", model.StringValue(string(e.Level)))
		o.Set("category", model.StringValue(string(e.Category)))
		o.Set("message", model.StringValue(e.Message))
		if e.Context != "" {
			o.Set("context", model.StringValue(e.Context))
		}
		out.Add(o)
	}
	return out, nil
}

func toValue(v any) model.Value {
	switch x := v.(type) {
	case nil:
		return model.Value{}
	case model.Value:
		return x
	case string:
		return model.StringValue(x)
	case int:
		return model.IntValue(x)
	case int64:
		return model.LongValue(x)
	case float64:
		return model.DoubleValue(x)
	case bool:
		return model.BoolValue(x)
	case []string:
		return model.StringList(x...)
	case map[string]string:
		return stringMap(x)
	}
	return model.StringValue(fmt.Sprint(v))
}
