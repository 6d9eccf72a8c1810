package extractor

import (
	"regexp"
	"strings"

	"github.com/shipsight/shipsight/pkg/models"
)

// Identifier-family regexes. Labeled forms ("load U110...", "tracking id
// 999...") are preferred over bare shapes to keep false positives down.
var (
	// ISO 6346: three owner letters, category letter (U/J/Z), six digits,
	// and a check digit.
	containerRe = regexp.MustCompile(`\b([A-Z]{3}[UJZ])(\d{6})(\d)\b`)

	// Air waybill: 3-digit airline prefix plus 8-digit serial.
	awbRe = regexp.MustCompile(`\b(\d{3})-?(\d{8})\b`)

	proRe     = regexp.MustCompile(`(?i)\bpro(?:\s*(?:number|#))?[:\s]+(\d{7,11})\b`)
	railCarRe = regexp.MustCompile(`(?i)\brail\s?car[:\s]+([A-Z]{2,4}\s?\d{1,6})\b`)
	bookingRe = regexp.MustCompile(`(?i)\bbooking(?:\s*(?:number|#))?[:\s]+([A-Z0-9-]{6,})\b`)
	bolRe     = regexp.MustCompile(`(?i)\b(?:bol|b/l|bill of lading)(?:\s*(?:number|#))?[:\s]+([A-Z0-9-]{6,})\b`)

	loadRe     = regexp.MustCompile(`(?i)\bload(?:\s*(?:number|#))?[:\s]+([A-Z]?\d{6,14})\b`)
	trackingRe = regexp.MustCompile(`(?i)\btracking(?:\s*(?:id|number|#))?[:\s]+([A-Z0-9-]{6,20})\b`)

	shipperRe = regexp.MustCompile(`(?i)\bshipper[:\s]+([^;,\n]+)`)
	carrierRe = regexp.MustCompile(`(?i)\bcarrier[:\s]+([^;,\n]+)`)

	allDigitsRe = regexp.MustCompile(`^\d+$`)
)

// iso6346Value maps a character to its ISO 6346 numeric value. Letters run
// A=10, B=12, ... skipping multiples of 11.
func iso6346Value(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	v := 10
	for c := 'A'; c < r; c++ {
		v++
		if v%11 == 0 {
			v++
		}
	}
	return v
}

// validISO6346 verifies the ISO 6346 check digit of an 11-character
// container number.
func validISO6346(s string) bool {
	if len(s) != 11 {
		return false
	}
	sum := 0
	for i, r := range s[:10] {
		sum += iso6346Value(r) << i
	}
	rem := sum % 11
	if rem == 10 {
		rem = 0
	}
	return rem == int(s[10]-'0')
}

// regexExtract fills missing slots from the ticket text using the identifier
// family regexes. Returned values are trimmed and non-empty.
func regexExtract(text string, into models.Identifiers, prov map[models.Slot]models.Provenance) {
	set := func(slot models.Slot, value string) {
		value = strings.TrimSpace(value)
		if value == "" || into.Has(slot) {
			return
		}
		into[slot] = value
		prov[slot] = models.ProvenanceRegex
	}

	if m := containerRe.FindStringSubmatch(text); m != nil {
		full := m[1] + m[2] + m[3]
		// Accept shape matches even when the check digit fails; scrapers
		// routinely mangle the last digit and the tracking API tolerates it.
		set(models.SlotContainerNumber, full)
	}
	if m := loadRe.FindStringSubmatch(text); m != nil {
		if allDigitsRe.MatchString(m[1]) {
			// A bare numeric "load" reference is indistinguishable from a
			// tracking ID; file it in the broader slot.
			set(models.SlotTrackingID, m[1])
		} else {
			set(models.SlotLoadNumber, strings.ToUpper(m[1]))
		}
	}
	if m := trackingRe.FindStringSubmatch(text); m != nil {
		set(models.SlotTrackingID, strings.ToUpper(m[1]))
	}
	if m := bookingRe.FindStringSubmatch(text); m != nil {
		set(models.SlotBookingNumber, strings.ToUpper(m[1]))
	}
	if m := bolRe.FindStringSubmatch(text); m != nil {
		set(models.SlotBillOfLading, strings.ToUpper(m[1]))
	}
	if m := proRe.FindStringSubmatch(text); m != nil {
		set(models.SlotProNumber, m[1])
	}
	if m := railCarRe.FindStringSubmatch(text); m != nil {
		set(models.SlotRailCar, strings.ToUpper(strings.ReplaceAll(m[1], " ", "")))
	}
	if m := awbRe.FindStringSubmatch(text); m != nil && !into.Has(models.SlotContainerNumber) && !into.Has(models.SlotTrackingID) {
		set(models.SlotAWB, m[1]+"-"+m[2])
	}
	if m := shipperRe.FindStringSubmatch(text); m != nil {
		set(models.SlotShipperID, m[1])
	}
	if m := carrierRe.FindStringSubmatch(text); m != nil {
		set(models.SlotCarrierID, m[1])
	}
}

// Mode keyword tables, checked in order.
var modeKeywords = []struct {
	mode  models.Mode
	words []string
}{
	{models.ModeOcean, []string{"vessel", "ocean", "port of", "sailing", "demurrage", "container ship", "bill of lading"}},
	{models.ModeAir, []string{"awb", "air waybill", "flight", "airport"}},
	{models.ModeRail, []string{"railcar", "rail car", "railroad", "intermodal ramp"}},
	{models.ModeOTR, []string{"truck", "driver", "eld", "pro number", "over the road"}},
	{models.ModeYard, []string{"yard check", "yard move", "trailer in yard"}},
}

// inferMode derives a transport mode from text keywords and identifier
// shapes when neither the user nor the LLM supplied one.
func inferMode(text string, ids models.Identifiers) models.Mode {
	lower := strings.ToLower(text)
	for _, entry := range modeKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.mode
			}
		}
	}

	switch {
	case ids.Has(models.SlotContainerNumber), ids.Has(models.SlotBookingNumber):
		return models.ModeOcean
	case ids.Has(models.SlotAWB):
		return models.ModeAir
	case ids.Has(models.SlotRailCar):
		return models.ModeRail
	case ids.Has(models.SlotProNumber):
		return models.ModeOTR
	}

	// Ocean unit load numbers carry a U prefix.
	if v, ok := ids[models.SlotLoadNumber]; ok && strings.HasPrefix(v, "U") {
		return models.ModeOcean
	}
	return models.ModeUnknown
}
