package model

// FieldKind is the coarse value type of one AnalysisRow field, for rendering
// backends that bind columns generically.
type FieldKind string

const (
	FieldKindInteger  FieldKind = "integer"
	FieldKindString   FieldKind = "string"
	FieldKindTime     FieldKind = "time"
	FieldKindDuration FieldKind = "duration"
	FieldKindPercent  FieldKind = "percent"
)

// FieldDescriptor describes one AnalysisRow field. The set and order of
// descriptors is a stable contract: any table, chart, or report backend can
// group by process, connection, and reason from these alone.
type FieldDescriptor struct {
	Name        string
	Kind        FieldKind
	Description string
}

// RowFields returns the descriptors for every AnalysisRow field, in row
// order. The returned slice is freshly allocated on each call.
func RowFields() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "connection_id", Kind: FieldKindInteger, Description: "Owning connection identifier"},
		{Name: "process_id", Kind: FieldKindInteger, Description: "Owning process identifier"},
		{Name: "reason", Kind: FieldKindString, Description: "Canonical blocking reason"},
		{Name: "timestamp", Kind: FieldKindTime, Description: "Start of the blocked interval"},
		{Name: "duration", Kind: FieldKindDuration, Description: "Length of the blocked interval"},
		{Name: "percent", Kind: FieldKindPercent, Description: "Share of the connection lifetime spent blocked on this interval"},
		{Name: "count", Kind: FieldKindInteger, Description: "Row count contribution, always 1"},
	}
}
