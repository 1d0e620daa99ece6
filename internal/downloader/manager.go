package downloader

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Manager tracks at most one running download per account.
type Manager struct {
	deps        Deps
	downloaders *xsync.Map[string, *Downloader]
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:        deps,
		downloaders: xsync.NewMap[string, *Downloader](),
	}
}

// Download starts a download for the account, or returns the one already
// running. onDone fires once the run finishes, with the downloader already
// deregistered; cancelled runs report context.Canceled.
func (m *Manager) Download(ctx context.Context, account string, onDone func(err error)) *Downloader {
	d := New(m.deps, account)
	existing, loaded := m.downloaders.LoadOrStore(account, d)
	if loaded {
		return existing
	}
	go func() {
		err := d.Run(ctx)
		if err != nil {
			m.deps.Logger.Error("download failed",
				zap.String("account", account),
				zap.Error(err))
		}
		if d.Cancelled() {
			// CancelDownload already deregistered it
			err = context.Canceled
		} else {
			m.downloaders.Delete(account)
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return d
}

// Get returns the running downloader for the account, if any.
func (m *Manager) Get(account string) (*Downloader, bool) {
	return m.downloaders.Load(account)
}

// CancelDownload cancels the account's download, deregisters it and
// snapshots whatever landed so far.
func (m *Manager) CancelDownload(account string) error {
	if d, ok := m.downloaders.LoadAndDelete(account); ok {
		d.Cancel()
	}
	return m.deps.Store.Save()
}
