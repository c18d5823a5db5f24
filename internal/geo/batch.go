package geo

import (
	"github.com/twpayne/go-geom"
)

// Record is one normalized feature: its geometry and its attributes keyed by
// destination field name.
type Record struct {
	// Geometry is nil for features stored without a shape. Its layout is the
	// one stored in the dataset, Z and M ordinates included.
	Geometry   geom.T
	Attributes map[string]Value
}

// Get returns the value of a destination field, or null when it is not set.
func (r Record) Get(field string) Value {
	return r.Attributes[field]
}

// Equal reports whether both records hold the same geometry and attributes.
func (r Record) Equal(o Record) bool {
	if !GeometryEqual(r.Geometry, o.Geometry) || len(r.Attributes) != len(o.Attributes) {
		return false
	}
	for k, v := range r.Attributes {
		ov, ok := o.Attributes[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Values returns the attributes as plain Go values, the shape expression
// evaluators and writers expect.
func (r Record) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Attributes))
	for k, v := range r.Attributes {
		out[k] = v.Interface()
	}
	return out
}

// Batch is the unit returned by BatchReader.NextBatch.
type Batch struct {
	// Offset is the dataset position of Records[0].
	Offset int64
	// Records in dataset order; between 1 and the configured batch size.
	Records []Record
	// Fields lists the destination field names in sorted order.
	Fields []string
	// Issues holds data-quality problems found on the records of this batch.
	Issues []DataQualityIssue
}

// Len is the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// End is the offset just past the last record.
func (b *Batch) End() int64 {
	return b.Offset + int64(len(b.Records))
}
