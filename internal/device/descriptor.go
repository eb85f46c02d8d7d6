package device

import (
	"slices"
	"strings"
)

// Descriptor identifies a discovered peripheral together with the metadata of
// its most recent advertisement. Descriptors are values; the slices they carry
// are private copies and must not be modified.
type Descriptor struct {
	Address          string   `json:"address"`
	Name             string   `json:"name"`
	RSSI             int      `json:"rssi"`
	Connectable      bool     `json:"connectable"`
	Services         []string `json:"services"`
	ManufacturerData []byte   `json:"manufacturer_data,omitempty"`
}

// NewDescriptor builds a Descriptor from an advertisement.
func NewDescriptor(adv Advertisement) Descriptor {
	services := make([]string, 0, len(adv.Services()))
	for _, s := range adv.Services() {
		n := NormalizeUUID(s)
		if !slices.Contains(services, n) {
			services = append(services, n)
		}
	}
	slices.Sort(services)

	return Descriptor{
		Address:          adv.Addr(),
		Name:             strings.TrimSpace(adv.LocalName()),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		Services:         services,
		ManufacturerData: slices.Clone(adv.ManufacturerData()),
	}
}

// DisplayName returns the advertised name, or the address when the peripheral
// does not advertise one.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// HasService reports whether the peripheral advertised the service uuid.
func (d Descriptor) HasService(uuid string) bool {
	return slices.Contains(d.Services, NormalizeUUID(uuid))
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	d.Services = slices.Clone(d.Services)
	d.ManufacturerData = slices.Clone(d.ManufacturerData)
	return d
}
