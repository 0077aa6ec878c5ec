package store

// ConsistencySnapshot is one appended row of the consistency audit log.
// ReportData carries the full report serialized as JSON.
type ConsistencySnapshot struct {
	OverallScore    int
	ChecksPerformed int
	ChecksPassed    int
	ChecksFailed    int
	DataHealth      string
	ReportData      []byte
}
