package permit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	n := NewNormalizer("etrakit", "granville-county-nc")
	n.now = func() time.Time { return time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC) }
	return n
}

func TestBuildHeaderMapResolvesPortalHeaders(t *testing.T) {
	hm := BuildHeaderMap([]string{"PERMIT_NO", "ISSUED", "PERMIT_TYPE", "STATUS", "SITE_APN", "SITE_ADDR"})

	assert.Equal(t, ProvenanceHeader, hm.Provenance())
	assert.Equal(t, 0, hm.Index(FieldPermitID))
	assert.Equal(t, 1, hm.Index(FieldIssued))
	assert.Equal(t, 2, hm.Index(FieldCategory))
	assert.Equal(t, 3, hm.Index(FieldStatus))
	assert.Equal(t, 4, hm.Index(FieldParcel))
	assert.Equal(t, 5, hm.Index(FieldAddress))
}

func TestBuildHeaderMapIsCaseAndPunctuationInsensitive(t *testing.T) {
	hm := BuildHeaderMap([]string{"Permit No.", "Issue Date", "Category", "Status", "Parcel #", "Site Address"})

	assert.Equal(t, ProvenanceHeader, hm.Provenance())
	assert.Equal(t, 0, hm.Index(FieldPermitID))
	assert.Equal(t, 1, hm.Index(FieldIssued))
	assert.Equal(t, 2, hm.Index(FieldCategory))
	assert.Equal(t, 4, hm.Index(FieldParcel))
	assert.Equal(t, 5, hm.Index(FieldAddress))
}

func TestBuildHeaderMapFallsBackToPositional(t *testing.T) {
	hm := BuildHeaderMap(nil)
	assert.Equal(t, ProvenancePositional, hm.Provenance())
	assert.Equal(t, 0, hm.Index(FieldPermitID))
	assert.Equal(t, 5, hm.Index(FieldAddress))

	unknown := BuildHeaderMap([]string{"???", "***"})
	assert.Equal(t, ProvenancePositional, unknown.Provenance())
}

func TestNormalizeEndToEndVector(t *testing.T) {
	hm := BuildHeaderMap([]string{"PERMIT_NO", "ISSUED", "CATEGORY", "STATUS", "PARCEL", "ADDRESS"})
	row := RawRow{"P-100", "01/02/2024", "DEMOLITION", "ISSUED", "123-45", "100 Main St"}

	rec := testNormalizer().Normalize(row, hm, "01/02/2024")

	require.NotNil(t, rec.PermitID)
	assert.Equal(t, "P-100", *rec.PermitID)
	assert.Equal(t, "01/02/2024", rec.IssuedDate)
	assert.Equal(t, "A", rec.Classification.Tier)
	assert.Equal(t, 98, rec.Classification.Score)
	// SHA256("01/02/2024|P-100|100 MAIN ST|DEMOLITION|ISSUED")
	assert.Equal(t,
		"84d70b1fa07569653817578f92bd80f7d856ab9723bf0c9ffa1b86d478a6d76d",
		rec.Fingerprint)
}

func TestNormalizeMissingColumnsAreNil(t *testing.T) {
	hm := BuildHeaderMap([]string{"PERMIT_NO", "ISSUED", "CATEGORY", "STATUS", "PARCEL", "ADDRESS"})
	// Trailing cells absent: parcel and address missing.
	row := RawRow{"P-200", "01/02/2024", "REROOF", "ISSUED"}

	rec := testNormalizer().Normalize(row, hm, "01/02/2024")

	assert.Nil(t, rec.ParcelID)
	assert.Nil(t, rec.Address)
	require.NotNil(t, rec.Status)
	assert.Equal(t, "ISSUED", *rec.Status)
}

func TestNormalizeEmptyCellIsNilNotEmptyString(t *testing.T) {
	hm := BuildHeaderMap([]string{"PERMIT_NO", "ISSUED", "CATEGORY", "STATUS", "PARCEL", "ADDRESS"})
	row := RawRow{"P-300", "01/02/2024", "DEMOLITION", "   ", "", "100 Main St"}

	rec := testNormalizer().Normalize(row, hm, "01/02/2024")

	assert.Nil(t, rec.Status)
	assert.Nil(t, rec.ParcelID)
}

func TestNormalizeDefaultsIssuedDateToQueryDate(t *testing.T) {
	hm := BuildHeaderMap([]string{"PERMIT_NO", "CATEGORY", "STATUS"})
	row := RawRow{"P-400", "DEMOLITION", "ISSUED"}

	rec := testNormalizer().Normalize(row, hm, "01/05/2024")
	assert.Equal(t, "01/05/2024", rec.IssuedDate)
}

// Normalizing identical field values twice must yield identical
// fingerprints: the dedup key is a pure function of content.
func TestFingerprintIdempotence(t *testing.T) {
	a := Fingerprint("01/02/2024", "P-100", "100 Main St", "Demolition", "Issued")
	b := Fingerprint("01/02/2024", "P-100", "100 MAIN ST", "DEMOLITION", "ISSUED")
	assert.Equal(t, a, b)

	c := Fingerprint("01/02/2024", "P-101", "100 Main St", "Demolition", "Issued")
	assert.NotEqual(t, a, c)
}

func TestNormalizePositionalProvenanceFlagged(t *testing.T) {
	hm := BuildHeaderMap(nil)
	row := RawRow{"P-500", "01/02/2024", "ADDITION", "ISSUED", "99-11", "5 Oak Ln"}

	rec := testNormalizer().Normalize(row, hm, "01/02/2024")
	assert.Equal(t, ProvenancePositional, rec.Provenance)
	require.NotNil(t, rec.Address)
	assert.Equal(t, "5 Oak Ln", *rec.Address)
}
