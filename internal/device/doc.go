// Package device defines the BLE abstractions the light controller is built on:
// advertisements, immutable device descriptors, the Transport used to scan and
// dial peripherals, the Link that carries writes to a connected peripheral, and
// the connection error taxonomy shared by every layer above the radio.
//
// The go-ble backed implementation lives in the goble subpackage.
package device
