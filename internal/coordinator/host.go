package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
	"github.com/AltairaLabs/chatpool/internal/tier"
)

// Host is the uniform surface of a hosting strategy. SlotPoolManager and
// DedicatedWorkerManager implement it; SessionRegistry routes to it.
type Host interface {
	HostingType() tier.HostingType
	Connect(ctx context.Context, userID string, policy tier.Policy) (*Session, error)
	Disconnect(ctx context.Context, userID string) error
	SendMessage(ctx context.Context, userID, to, body string) (*SendResult, error)
	Shutdown(ctx context.Context) error
}

// HostDeps are the collaborators shared by every hosting strategy.
type HostDeps struct {
	QR     storage.QRStore
	PIDs   storage.PIDRegistry
	Events EventSink
	Logger *slog.Logger
	Now    func() time.Time
}

func (d HostDeps) withDefaults() HostDeps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.QR == nil {
		d.QR = noopQRStore{}
	}
	if d.PIDs == nil {
		d.PIDs = noopPIDRegistry{}
	}
	if d.Events == nil {
		d.Events = NewLogSink(d.Logger)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type noopQRStore struct{}

func (noopQRStore) Save(context.Context, string, string) error { return nil }
func (noopQRStore) Clear(context.Context, string) error        { return nil }

type noopPIDRegistry struct{}

func (noopPIDRegistry) RegisterActive(context.Context, string, int) error { return nil }
func (noopPIDRegistry) Unregister(context.Context, string) error          { return nil }
