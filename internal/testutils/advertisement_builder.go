package testutils

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/srg/lotus/internal/device"
)

// FakeAdvertisement is a fixed device.Advertisement for tests.
type FakeAdvertisement struct {
	Name        string
	Address     string
	Rssi        int
	ServiceList []string
	ManufData   []byte
	TxPower     int
	IsConnect   bool
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.ManufData }
func (a *FakeAdvertisement) Services() []string       { return a.ServiceList }
func (a *FakeAdvertisement) TxPowerLevel() int        { return a.TxPower }
func (a *FakeAdvertisement) Connectable() bool        { return a.IsConnect }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Addr() string             { return a.Address }

// AdvertisementBuilder builds fake BLE advertisements for testing.
//
//	adv := testutils.NewAdvertisementBuilder().
//	    WithAddress("AA:BB:CC:DD:EE:FF").
//	    WithName("ELK-BLEDOM").
//	    WithServices("fff0").
//	    Build()
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement
// with RSSI -50 and no TX power information.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{
		Rssi:      -50,
		TxPower:   127,
		IsConnect: true,
	}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceList = append(b.adv.ServiceList, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufData = data
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.TxPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnect = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name             *string  `json:"name"`
		Address          *string  `json:"address"`
		RSSI             *int     `json:"rssi"`
		Services         []string `json:"services"`
		ManufacturerData []byte   `json:"manufacturerData"`
		TxPower          *int     `json:"txPower"`
		Connectable      *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Name != nil {
		b.adv.Name = *data.Name
	}
	if data.Address != nil {
		b.adv.Address = *data.Address
	}
	if data.RSSI != nil {
		b.adv.Rssi = *data.RSSI
	}
	if data.Services != nil {
		b.adv.ServiceList = data.Services
	}
	if data.ManufacturerData != nil {
		b.adv.ManufData = data.ManufacturerData
	}
	if data.TxPower != nil {
		b.adv.TxPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.adv.IsConnect = *data.Connectable
	}
	return b
}

// Build returns an independent copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.ServiceList = slices.Clone(b.adv.ServiceList)
	adv.ManufData = slices.Clone(b.adv.ManufData)
	return &adv
}

// BuildDescriptor builds the advertisement and converts it to a descriptor.
func (b *AdvertisementBuilder) BuildDescriptor() device.Descriptor {
	return device.NewDescriptor(b.Build())
}

// Advertisements converts fakes to the device.Advertisement interface slice.
func Advertisements(advs ...*FakeAdvertisement) []device.Advertisement {
	out := make([]device.Advertisement, len(advs))
	for i, a := range advs {
		out[i] = a
	}
	return out
}
