package directory

import (
	"errors"
	"time"

	"tradefin/core/events"
	"tradefin/core/types"
)

var (
	errNilState          = errors.New("exporter directory: state not configured")
	errNilProfile        = errors.New("exporter directory: nil profile")
	errEmptyExporter     = errors.New("exporter directory: exporter address required")
	errEmptyBusinessName = errors.New("exporter directory: business name required")

	// ErrUnauthorized is returned when the caller lacks the administrator role.
	ErrUnauthorized = errors.New("exporter directory: unauthorized caller")
	// ErrNotFound is returned when an exporter was never approved.
	ErrNotFound = errors.New("exporter directory: exporter not found")
)

type directoryState interface {
	ProfilePut(*ExporterProfile) error
	ProfileGet(exporter [20]byte) (*ExporterProfile, bool, error)
}

// Authorizer answers whether a caller holds the administrator capability. The
// policy itself lives outside the directory so it can be swapped in tests.
type Authorizer interface {
	IsAdmin(addr [20]byte) bool
}

type directoryEvent struct {
	evt *types.Event
}

func (e directoryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e directoryEvent) Event() *types.Event { return e.evt }

// Directory maintains the registry of approved exporters consulted by the
// receivable ledger. It is consulted, never mutated, by downstream modules.
type Directory struct {
	state   directoryState
	auth    Authorizer
	emitter events.Emitter
	nowFn   func() int64
}

// NewDirectory creates a directory with a no-op emitter.
func NewDirectory() *Directory {
	return &Directory{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the directory.
func (d *Directory) SetState(state directoryState) { d.state = state }

// SetAuthorizer configures the administrator capability check.
func (d *Directory) SetAuthorizer(auth Authorizer) { d.auth = auth }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (d *Directory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (d *Directory) SetNowFunc(now func() int64) {
	if now == nil {
		d.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	d.nowFn = now
}

func (d *Directory) emit(event *types.Event) {
	if d == nil || d.emitter == nil || event == nil {
		return
	}
	d.emitter.Emit(directoryEvent{evt: event})
}

// Approve records (or overwrites) the attested profile for an exporter. Only
// an administrator may approve.
func (d *Directory) Approve(caller [20]byte, profile *ExporterProfile) (*ExporterProfile, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	if d.auth == nil || !d.auth.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}
	sanitized, err := SanitizeProfile(profile)
	if err != nil {
		return nil, err
	}
	sanitized.Approved = true
	sanitized.ApprovedAt = d.nowFn()
	if err := d.state.ProfilePut(sanitized); err != nil {
		return nil, err
	}
	d.emit(NewExporterApprovedEvent(sanitized))
	return sanitized.Clone(), nil
}

// IsApproved reports whether the exporter holds an active approval. Storage
// failures propagate rather than masquerading as an unapproved exporter.
func (d *Directory) IsApproved(exporter [20]byte) (bool, error) {
	if d == nil || d.state == nil {
		return false, errNilState
	}
	profile, ok, err := d.state.ProfileGet(exporter)
	if err != nil {
		return false, err
	}
	return ok && profile != nil && profile.Approved, nil
}

// GetProfile returns the stored profile, failing with ErrNotFound when the
// exporter was never approved.
func (d *Directory) GetProfile(exporter [20]byte) (*ExporterProfile, error) {
	if d == nil || d.state == nil {
		return nil, errNilState
	}
	profile, ok, err := d.state.ProfileGet(exporter)
	if err != nil {
		return nil, err
	}
	if !ok || profile == nil {
		return nil, ErrNotFound
	}
	return profile.Clone(), nil
}
