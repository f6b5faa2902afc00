package embedded

import (
	"fmt"
	"sort"
	"sync"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
)

// SiteStatus is the reachability of a backup site as seen by a cache.
type SiteStatus string

const (
	SiteOnline  SiteStatus = "online"
	SiteOffline SiteStatus = "offline"
	SiteMixed   SiteStatus = "mixed"
)

// Push state transfer states.
const (
	PushSending   = "SENDING"
	PushOK        = "OK"
	PushCancelled = "CANCELED"
)

const opSuccess = "ok"

type site struct {
	cfg    configuration.Backup
	status SiteStatus
	push   string
}

// XSiteAdmin administers the backup sites of one cache. There is no remote site transport, so a
// push to an online site completes immediately.
type XSiteAdmin struct {
	mu      sync.Mutex
	sites   map[string]*site
	sending string
}

func newXSiteAdmin(sites configuration.Sites) *XSiteAdmin {
	x := &XSiteAdmin{sites: make(map[string]*site, len(sites.Backups))}
	for _, b := range sites.Backups {
		st := SiteOffline
		if b.Enabled {
			st = SiteOnline
		}
		x.sites[b.Site] = &site{cfg: b, status: st}
	}
	return x
}

func (x *XSiteAdmin) get(name string) (*site, error) {
	s, ok := x.sites[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, name)
	}
	return s, nil
}

// Sites returns backup site names, sorted.
func (x *XSiteAdmin) Sites() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.sites))
	for n := range x.sites {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (x *XSiteAdmin) HasSite(name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.sites[name]
	return ok
}

func (x *XSiteAdmin) SiteStatus(name string) (SiteStatus, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, err := x.get(name)
	if err != nil {
		return "", err
	}
	return s.status, nil
}

// Status returns the status of every site.
func (x *XSiteAdmin) Status() map[string]SiteStatus {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]SiteStatus, len(x.sites))
	for n, s := range x.sites {
		out[n] = s.status
	}
	return out
}

func (x *XSiteAdmin) BringSiteOnline(name string) (string, error) {
	return x.setStatus(name, SiteOnline)
}

func (x *XSiteAdmin) TakeSiteOffline(name string) (string, error) {
	return x.setStatus(name, SiteOffline)
}

func (x *XSiteAdmin) setStatus(name string, st SiteStatus) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, err := x.get(name)
	if err != nil {
		return "", err
	}
	s.status = st
	return opSuccess, nil
}

// PushState transfers the cache content to an online site.
func (x *XSiteAdmin) PushState(name string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, err := x.get(name)
	if err != nil {
		return "", err
	}
	if s.status != SiteOnline {
		return "", fmt.Errorf("site %s is offline, bring it online before pushing state", name)
	}
	s.push = PushOK
	return opSuccess, nil
}

func (x *XSiteAdmin) CancelPushState(name string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, err := x.get(name)
	if err != nil {
		return "", err
	}
	if s.push == PushSending {
		s.push = PushCancelled
	}
	return opSuccess, nil
}

// CancelReceiveState stops receiving state from name.
func (x *XSiteAdmin) CancelReceiveState(name string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.sending != name {
		return "", fmt.Errorf("not receiving state from site %s", name)
	}
	x.sending = ""
	return opSuccess, nil
}

// PushStateStatus returns the last push state of each site that was pushed to.
func (x *XSiteAdmin) PushStateStatus() map[string]string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := map[string]string{}
	for n, s := range x.sites {
		if s.push != "" {
			out[n] = s.push
		}
	}
	return out
}

// SendingSite is the site currently pushing state to this cache, empty when none.
func (x *XSiteAdmin) SendingSite() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sending
}

func (x *XSiteAdmin) ClearPushStateStatus() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, s := range x.sites {
		if s.push != PushSending {
			s.push = ""
		}
	}
	return opSuccess
}

// ReceiveState marks name as the site sending state until CancelReceiveState.
func (x *XSiteAdmin) ReceiveState(name string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.sending = name
}

// aggregate combines one site's status across caches: online or offline when every cache agrees,
// mixed otherwise.
func aggregate(statuses []SiteStatus) SiteStatus {
	if len(statuses) == 0 {
		return ""
	}
	first := statuses[0]
	for _, s := range statuses[1:] {
		if s != first {
			return SiteMixed
		}
	}
	return first
}
