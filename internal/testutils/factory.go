package testutils

import (
	"context"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// FakeFactory is a ports.EngineFactory producing FakeEngines.
type FakeFactory struct {
	// OnOpen configures every engine before it is returned.
	OnOpen func(e *FakeEngine)
	// OpenErr fails every Open call when set.
	OpenErr error

	mu     sync.Mutex
	opened map[domain.TenantID][]*FakeEngine
}

// NewFakeFactory creates a factory whose engines become ready on Connect.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		OnOpen: ReadyOnConnect(domain.Identity{ID: "15550009999@c.us", PhoneNumber: "15550009999", PushName: "Bot"}),
		opened: make(map[domain.TenantID][]*FakeEngine),
	}
}

func (f *FakeFactory) Open(tenant domain.TenantID, credentialDir string, handler ports.EventHandler) (ports.Engine, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	e := NewFakeEngine(tenant, credentialDir, handler)
	if f.OnOpen != nil {
		f.OnOpen(e)
	}
	f.mu.Lock()
	f.opened[tenant] = append(f.opened[tenant], e)
	f.mu.Unlock()
	return e, nil
}

// Opened returns every engine opened for a tenant, oldest first.
func (f *FakeFactory) Opened(tenant domain.TenantID) []*FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeEngine(nil), f.opened[tenant]...)
}

// Last returns the most recent engine opened for a tenant, or nil.
func (f *FakeFactory) Last(tenant domain.TenantID) *FakeEngine {
	engines := f.Opened(tenant)
	if len(engines) == 0 {
		return nil
	}
	return engines[len(engines)-1]
}

// Live counts engines of a tenant that were opened and not closed.
func (f *FakeFactory) Live(tenant domain.TenantID) int {
	n := 0
	for _, e := range f.Opened(tenant) {
		if !e.Closed() {
			n++
		}
	}
	return n
}

// Tenants returns the tenants an engine was opened for.
func (f *FakeFactory) Tenants() []domain.TenantID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TenantID, 0, len(f.opened))
	for t := range f.opened {
		out = append(out, t)
	}
	return out
}

// ReadyOnConnect makes engines emit authenticated and ready during Connect.
func ReadyOnConnect(identity domain.Identity) func(e *FakeEngine) {
	return func(e *FakeEngine) {
		e.ConnectFunc = func(_ context.Context, e *FakeEngine) error {
			e.EmitReady(identity)
			return nil
		}
	}
}

// QROnConnect makes engines emit a qr event during Connect.
func QROnConnect(code string) func(e *FakeEngine) {
	return func(e *FakeEngine) {
		e.ConnectFunc = func(_ context.Context, e *FakeEngine) error {
			e.EmitQR(code)
			return nil
		}
	}
}

// SilentOnConnect makes engines connect without emitting anything.
func SilentOnConnect() func(e *FakeEngine) {
	return func(e *FakeEngine) {
		e.ConnectFunc = nil
	}
}
