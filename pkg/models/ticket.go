// Package models defines the core data model of the RCA engine: tickets,
// identifiers, evidence, hypotheses, and the investigation state machine.
package models

import "time"

// Mode is the transport mode of a shipment.
type Mode string

const (
	ModeOcean   Mode = "ocean"
	ModeRail    Mode = "rail"
	ModeAir     Mode = "air"
	ModeOTR     Mode = "otr"
	ModeYard    Mode = "yard"
	ModeUnknown Mode = "unknown"
)

// IsValid checks whether the mode is one of the known transport modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeOcean, ModeRail, ModeAir, ModeOTR, ModeYard, ModeUnknown:
		return true
	default:
		return false
	}
}

// Slot names a semantic identifier slot. Unknown values are absent from the
// identifiers map, never empty strings.
type Slot string

const (
	SlotTrackingID      Slot = "tracking_id"
	SlotLoadNumber      Slot = "load_number"
	SlotContainerNumber Slot = "container_number"
	SlotBookingNumber   Slot = "booking_number"
	SlotBillOfLading    Slot = "bill_of_lading"
	SlotCarrierID       Slot = "carrier_id"
	SlotShipperID       Slot = "shipper_id"

	// Mode-specific extensions.
	SlotAWB       Slot = "awb"
	SlotProNumber Slot = "pro_number"
	SlotRailCar   Slot = "rail_car"
)

// Provenance records how an identifier value was obtained.
type Provenance string

const (
	ProvenanceUser  Provenance = "user"
	ProvenanceLLM   Provenance = "llm"
	ProvenanceRegex Provenance = "regex"
)

// Identifiers is the set of known identifier values keyed by slot.
// Mutable during the intake phase, frozen thereafter.
type Identifiers map[Slot]string

// Clone returns an independent copy.
func (ids Identifiers) Clone() Identifiers {
	out := make(Identifiers, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out
}

// Has reports whether the slot has a value.
func (ids Identifiers) Has(slot Slot) bool {
	v, ok := ids[slot]
	return ok && v != ""
}

// HasAll reports whether every given slot has a value.
func (ids Identifiers) HasAll(slots ...Slot) bool {
	for _, s := range slots {
		if !ids.Has(s) {
			return false
		}
	}
	return true
}

// Trackable reports whether at least one tracking-usable identifier is set.
func (ids Identifiers) Trackable() bool {
	for _, s := range []Slot{
		SlotTrackingID, SlotLoadNumber, SlotContainerNumber,
		SlotBookingNumber, SlotBillOfLading, SlotAWB, SlotProNumber, SlotRailCar,
	} {
		if ids.Has(s) {
			return true
		}
	}
	return false
}

// Ticket is the immutable investigation input.
type Ticket struct {
	Description string            `json:"description"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	ModeHint    Mode              `json:"mode_hint,omitempty"`
	ShipperHint string            `json:"shipper_hint,omitempty"`
	CarrierHint string            `json:"carrier_hint,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}
