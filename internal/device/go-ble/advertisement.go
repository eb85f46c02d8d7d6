package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/lotus/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return a.adv.TxPowerLevel() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

// Services returns advertised and overflow service UUIDs in normalized form.
func (a *BLEAdvertisement) Services() []string {
	result := make([]string, 0, len(a.adv.Services()))
	for _, svc := range a.adv.Services() {
		result = append(result, device.NormalizeUUID(svc.String()))
	}
	for _, svc := range a.adv.OverflowService() {
		result = append(result, device.NormalizeUUID(svc.String()))
	}
	return result
}
