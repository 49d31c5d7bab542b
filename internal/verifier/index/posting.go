package index

// PostingList holds the corpus positions of every record containing a token,
// in ascending order and without duplicates.
type PostingList []int

// Entry is the derived, position-aligned form of a corpus record.
type Entry struct {
	Normalized string
	Tokens     []string
}

// TermEntry pairs a token with the number of records containing it.
type TermEntry struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}

// Stats summarises an index for health and diagnostics endpoints.
type Stats struct {
	Records      int     `json:"records"`
	Terms        int     `json:"terms"`
	Postings     int     `json:"postings"`
	EmptyRecords int     `json:"empty_records"`
	AvgTokens    float64 `json:"avg_tokens_per_record"`
}
