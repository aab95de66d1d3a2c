package static

import "fmt"

// Archive processing stages reported by ArchiveFailure
const (
	StageDownload = "download"
	StageExtract  = "extract"
	StageLocate   = "locate"
	StageParse    = "parse"
)

// ArchiveFailure reports an archive that could not be loaded
type ArchiveFailure struct {
	URL   string
	Stage string
	Err   error
}

func (e *ArchiveFailure) Error() string {
	return fmt.Sprintf("archive %s: %s failed: %v", e.URL, e.Stage, e.Err)
}

func (e *ArchiveFailure) Unwrap() error {
	return e.Err
}
