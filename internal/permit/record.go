package permit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RawRow is the ordered sequence of trimmed, whitespace-collapsed cell
// strings extracted from one results-table row. Rows may carry fewer cells
// than the table has headers; trailing cells are treated as absent.
type RawRow []string

// Field names a logical column of the results grid.
type Field string

const (
	FieldPermitID Field = "permit_id"
	FieldIssued   Field = "issued_date"
	FieldCategory Field = "category"
	FieldStatus   Field = "status"
	FieldParcel   Field = "parcel_id"
	FieldAddress  Field = "address"
)

// Provenance records how cell values were mapped onto fields.
type Provenance string

const (
	// ProvenanceHeader means columns were resolved by header-name lookup.
	ProvenanceHeader Provenance = "header"
	// ProvenancePositional means fixed column indices were assumed because
	// headers could not be determined. Degraded mode; flagged, not silent.
	ProvenancePositional Provenance = "positional"
)

// Record is the canonical, normalized output unit for one permit.
type Record struct {
	Source         string         `json:"source"`
	Jurisdiction   string         `json:"jurisdiction"`
	IssuedDate     string         `json:"issuedDate"`
	PermitID       *string        `json:"permitId"`
	Category       *string        `json:"category"`
	Status         *string        `json:"status"`
	ParcelID       *string        `json:"parcelId"`
	Address        *string        `json:"address"`
	Classification Classification `json:"classification"`
	Fingerprint    string         `json:"fingerprint"`
	Provenance     Provenance     `json:"provenance"`
	ScrapedAt      time.Time      `json:"scrapedAt"`
}

// HeaderMap resolves logical fields to cell indices.
type HeaderMap struct {
	indices    map[Field]int
	provenance Provenance
}

// Provenance reports whether this map came from real headers or from the
// positional fallback.
func (m HeaderMap) Provenance() Provenance { return m.provenance }

// Index returns the cell index for a field, or -1 when the column is absent.
func (m HeaderMap) Index(f Field) int {
	idx, ok := m.indices[f]
	if !ok {
		return -1
	}
	return idx
}

// positionalIndices is the portal's historical column order, used only when
// header resolution fails.
var positionalIndices = map[Field]int{
	FieldPermitID: 0,
	FieldIssued:   1,
	FieldCategory: 2,
	FieldStatus:   3,
	FieldParcel:   4,
	FieldAddress:  5,
}

// normalizeHeader upper-cases a header label and replaces punctuation runs
// with single spaces so "PERMIT_NO", "Permit No." and "permit-no" all
// compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(h) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return normalizeText(b.String())
}

// fieldMatchers maps header fragments onto fields. Ordered: category must
// be tested before permit-id so "PERMIT TYPE" does not land on the id
// column, and parcel before address so "SITE APN" wins over "SITE ADDR".
var fieldMatchers = []struct {
	field     Field
	fragments []string
}{
	{FieldIssued, []string{"ISSUED", "ISSUE DATE"}},
	{FieldCategory, []string{"TYPE", "CATEGORY"}},
	{FieldStatus, []string{"STATUS"}},
	{FieldParcel, []string{"PARCEL", "APN"}},
	{FieldAddress, []string{"ADDRESS", "ADDR"}},
	{FieldPermitID, []string{"PERMIT", "RECORD", "ID", "NO"}},
}

// BuildHeaderMap maps header labels to field indices. When no recognizable
// header is present it falls back to fixed positional indices and marks
// the map as positional.
func BuildHeaderMap(headers []string) HeaderMap {
	indices := make(map[Field]int)
	for i, h := range headers {
		normalized := normalizeHeader(h)
		if normalized == "" {
			continue
		}
		for _, fm := range fieldMatchers {
			if _, taken := indices[fm.field]; taken {
				continue
			}
			matched := false
			for _, frag := range fm.fragments {
				if strings.Contains(normalized, frag) {
					matched = true
					break
				}
			}
			if matched {
				indices[fm.field] = i
				break
			}
		}
	}

	if len(indices) == 0 {
		return HeaderMap{indices: positionalIndices, provenance: ProvenancePositional}
	}
	return HeaderMap{indices: indices, provenance: ProvenanceHeader}
}

// Fingerprint computes the content hash over a record's identity-bearing
// fields. The field-delimited, upper-cased input makes the hash stable
// across whitespace and casing noise while staying sensitive to genuine
// content changes; it is the cross-run dedup key.
func Fingerprint(issuedDate, permitID, address, category, status string) string {
	joined := strings.Join([]string{issuedDate, permitID, address, category, status}, "|")
	sum := sha256.Sum256([]byte(strings.ToUpper(joined)))
	return hex.EncodeToString(sum[:])
}

// Normalizer maps raw rows into canonical records.
type Normalizer struct {
	Source       string
	Jurisdiction string

	now func() time.Time
}

// NewNormalizer returns a Normalizer stamping records with the given
// provenance strings.
func NewNormalizer(source, jurisdiction string) *Normalizer {
	return &Normalizer{Source: source, Jurisdiction: jurisdiction, now: time.Now}
}

// cell returns the normalized cell value for a field, or nil when the row
// lacks the corresponding column. Missing is always nil, never "".
func cell(row RawRow, hm HeaderMap, f Field) *string {
	idx := hm.Index(f)
	if idx < 0 || idx >= len(row) {
		return nil
	}
	v := normalizeText(row[idx])
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Normalize maps one raw row to a canonical record. queryDate is the
// originally-searched issued date and backfills the record when the row
// does not carry its own.
func (n *Normalizer) Normalize(row RawRow, hm HeaderMap, queryDate string) Record {
	rec := Record{
		Source:       n.Source,
		Jurisdiction: n.Jurisdiction,
		PermitID:     cell(row, hm, FieldPermitID),
		Category:     cell(row, hm, FieldCategory),
		Status:       cell(row, hm, FieldStatus),
		ParcelID:     cell(row, hm, FieldParcel),
		Address:      cell(row, hm, FieldAddress),
		Provenance:   hm.Provenance(),
		ScrapedAt:    n.now().UTC(),
	}

	if issued := cell(row, hm, FieldIssued); issued != nil {
		rec.IssuedDate = *issued
	} else {
		rec.IssuedDate = queryDate
	}

	rec.Classification = Classify(deref(rec.Category))
	rec.Fingerprint = Fingerprint(
		rec.IssuedDate,
		deref(rec.PermitID),
		deref(rec.Address),
		deref(rec.Category),
		deref(rec.Status),
	)
	return rec
}
