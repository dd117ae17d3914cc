package domain

// FileDeleteReport summarizes a row deletion that cascaded to attachment
// files on disk.
type FileDeleteReport struct {
	RowsDeleted int64    `json:"rows_deleted"`
	Deleted     []string `json:"deleted_files"`
	NotDeleted  []string `json:"not_deleted_files"`
	BasePath    string   `json:"base_path"`
}

// SweepReport summarizes one orphaned-attachment sweep pass.
type SweepReport struct {
	Scanned  int      `json:"scanned"`
	Removed  []string `json:"removed"`
	Skipped  int      `json:"skipped"`
	BasePath string   `json:"base_path"`
}
