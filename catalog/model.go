package catalog

// FileInfo is the metadata supplied when a file is (re)indexed.
type FileInfo struct {
	Path         string
	Name         string
	Extension    string
	LastModified int64 // Unix seconds
}

// FileRecord is a row of the files table.
type FileRecord struct {
	ID           int64  `json:"id"`
	Path         string `json:"path"`
	Name         string `json:"name"`
	Extension    string `json:"extension"`
	LastModified int64  `json:"lastModified"`
}

// Entry pairs a file with its embedding. HasVector is false for files that
// were never embedded; Vector is nil in that case.
type Entry struct {
	File      FileRecord
	Vector    []float32
	HasVector bool
}

// PutResult describes what Put did.
type PutResult struct {
	ID      int64
	Created bool // a new file row was inserted
	Updated bool // an existing row was replaced with newer data
	Skipped bool // stored timestamp was not older; nothing written
}

// Stats summarises the catalog contents.
type Stats struct {
	Files     int `json:"files"`
	Embedded  int `json:"embedded"`
	Dimension int `json:"dimension"`
}
