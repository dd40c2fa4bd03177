package wsserial

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeviceRecord is a known device. Endpoint is the identity key.
type DeviceRecord struct {
	Endpoint    string `json:"endpoint"`
	DisplayName string `json:"displayName"`
}

// Registry is the ordered, de-duplicated list of known devices, persisted
// under KeyDeviceNames
type Registry struct {
	store    Store
	validate func(endpoint string) error
	log      logrus.FieldLogger

	mu      sync.RWMutex
	devices []DeviceRecord
}

// NewRegistry restores the device list from store. Missing or unreadable
// data yields an empty list. validate decides whether an endpoint is usable;
// it is expected to try building a channel.
func NewRegistry(store Store, validate func(endpoint string) error, log logrus.FieldLogger) *Registry {
	r := &Registry{
		store:    store,
		validate: validate,
		log:      log,
	}
	r.devices = r.restore()
	return r
}

func (r *Registry) restore() []DeviceRecord {
	data, err := r.store.Load(KeyDeviceNames)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		r.log.WithError(err).Warn("device list unavailable, starting empty")
		return nil
	}

	var devices []DeviceRecord
	if err := json.Unmarshal(data, &devices); err != nil {
		r.log.WithError(err).Warn("device list corrupt, starting empty")
		return nil
	}

	// Keep the first occurrence if the stored list was edited by hand.
	seen := make(map[string]bool, len(devices))
	out := devices[:0]
	for _, d := range devices {
		if d.Endpoint == "" || seen[d.Endpoint] {
			continue
		}
		seen[d.Endpoint] = true
		out = append(out, d)
	}
	return out
}

// Validate reports whether endpoint can be turned into a channel
func (r *Registry) Validate(endpoint string) error {
	return r.validate(endpoint)
}

// Add appends a device and persists the list. It returns ErrDuplicateDevice
// if the endpoint is already known.
func (r *Registry) Add(endpoint, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.Endpoint == endpoint {
			return ErrDuplicateDevice
		}
	}

	if displayName == "" {
		displayName = endpoint
	}
	next := append(slices.Clip(r.devices), DeviceRecord{Endpoint: endpoint, DisplayName: displayName})

	// The list only grows once it is stored
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := r.store.Save(KeyDeviceNames, data); err != nil {
		return fmt.Errorf("failed to persist device list: %w", err)
	}
	r.devices = next
	return nil
}

// List returns the devices in insertion order
func (r *Registry) List() []DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DeviceRecord(nil), r.devices...)
}

// Lookup finds a device by endpoint
func (r *Registry) Lookup(endpoint string) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Endpoint == endpoint {
			return d, true
		}
	}
	return DeviceRecord{}, false
}
