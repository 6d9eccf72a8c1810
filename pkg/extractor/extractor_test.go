package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
)

func extract(t *testing.T, description string) *Result {
	t.Helper()
	x := New(llm.Disabled{})
	res, err := x.Extract(context.Background(), models.Ticket{
		Description: description,
		SubmittedAt: time.Now(),
	})
	require.NoError(t, err)
	return res
}

func TestExtractLabeledLoadNumber(t *testing.T) {
	res := extract(t, "Load U110123982 shows no vessel updates since departure from Shanghai")

	assert.Equal(t, "U110123982", res.Identifiers[models.SlotLoadNumber])
	assert.Equal(t, models.ProvenanceRegex, res.Provenance[models.SlotLoadNumber])
	assert.Equal(t, models.ModeOcean, res.Mode, "vessel keyword and U-prefixed load imply ocean")
}

func TestExtractBareNumericLoadFilesAsTrackingID(t *testing.T) {
	res := extract(t, "Customer asking why load 614258134 is not tracking, truck left yesterday")

	assert.Equal(t, "614258134", res.Identifiers[models.SlotTrackingID])
	assert.False(t, res.Identifiers.Has(models.SlotLoadNumber),
		"bare numeric load references are ambiguous and land in tracking_id")
	assert.Equal(t, models.ModeOTR, res.Mode)
}

func TestExtractContainerNumber(t *testing.T) {
	// MSCU5285725 carries a valid ISO 6346 check digit.
	res := extract(t, "No events for container MSCU5285725 at port of Long Beach")

	assert.Equal(t, "MSCU5285725", res.Identifiers[models.SlotContainerNumber])
	assert.Equal(t, models.ModeOcean, res.Mode)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestExtractContainerBadCheckDigitLowersConfidence(t *testing.T) {
	res := extract(t, "container MSCU5285720 stuck, vessel departed last week")

	assert.Equal(t, "MSCU5285720", res.Identifiers[models.SlotContainerNumber],
		"shape matches survive a mangled check digit")
	assert.Equal(t, 0.7, res.Confidence)
}

func TestExtractAWB(t *testing.T) {
	res := extract(t, "AWB 020-12345678 missing flight departure events")

	assert.Equal(t, "020-12345678", res.Identifiers[models.SlotAWB])
	assert.Equal(t, models.ModeAir, res.Mode)
}

func TestExtractShipperAndCarrier(t *testing.T) {
	res := extract(t, "tracking id FXT-883271 dark; shipper: Acme Foods, carrier: Swift Logistics")

	assert.Equal(t, "FXT-883271", res.Identifiers[models.SlotTrackingID])
	assert.Equal(t, "Acme Foods", res.Identifiers[models.SlotShipperID])
	assert.Equal(t, "Swift Logistics", res.Identifiers[models.SlotCarrierID])
}

func TestExtractUserSuppliedWinsOverText(t *testing.T) {
	x := New(llm.Disabled{})
	res, err := x.Extract(context.Background(), models.Ticket{
		Description: "load 999999999 not tracking",
		Identifiers: map[string]string{"tracking_id": "from-user"},
		CarrierHint: "Knight Transport",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-user", res.Identifiers[models.SlotTrackingID])
	assert.Equal(t, models.ProvenanceUser, res.Provenance[models.SlotTrackingID])
	assert.Equal(t, "Knight Transport", res.Identifiers[models.SlotCarrierID])
}

func TestExtractNoIdentifiers(t *testing.T) {
	x := New(llm.Disabled{})
	_, err := x.Extract(context.Background(), models.Ticket{
		Description: "everything is broken, please advise",
	})
	assert.ErrorIs(t, err, ErrNoIdentifiers)
}

func TestValidISO6346(t *testing.T) {
	assert.True(t, validISO6346("MSCU5285725"))
	assert.False(t, validISO6346("MSCU5285720"))
	assert.False(t, validISO6346("MSCU528572"))

	// A maps to 10, the first value in the skip-multiples-of-11 sequence.
	assert.True(t, validISO6346("MAEU1234567"))
	assert.False(t, validISO6346("MAEU1234560"))
}

func TestExtractContainerWithLetterA(t *testing.T) {
	res := extract(t, "container MAEU1234567 shows no discharge event at Rotterdam")

	assert.Equal(t, "MAEU1234567", res.Identifiers[models.SlotContainerNumber])
	assert.Equal(t, 1.0, res.Confidence, "a valid check digit keeps full confidence")
}

func TestMissingSlots(t *testing.T) {
	ids := models.Identifiers{models.SlotTrackingID: "x", models.SlotCarrierID: "y"}

	missing := MissingSlots(ids, models.ModeUnknown)
	assert.Contains(t, missing, "load_number")
	assert.Contains(t, missing, "container_number")
	assert.Contains(t, missing, "shipper_id")
	assert.Contains(t, missing, "mode")
	assert.NotContains(t, missing, "tracking_id")

	missing = MissingSlots(ids, models.ModeOTR)
	assert.NotContains(t, missing, "mode")
}
