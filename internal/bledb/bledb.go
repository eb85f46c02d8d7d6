// Package bledb resolves GATT UUIDs used by light fixtures to readable names.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"fff0": "BLEDOM Light Control",
	"ffd5": "Triones Light Control",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a29": "Manufacturer Name String",
	"fff3": "BLEDOM Command",
	"fff4": "BLEDOM Notify",
	"ffd9": "Triones Command",
}

// NormalizeUUID converts a UUID string to the internal form: lowercase, no dashes,
// braces or 0x prefix. Full UUIDs built on the SIG base collapse to their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.NewReplacer("-", "", "{", "", "}", "").Replace(u)

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the known name of a service, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}
