package models

import "time"

// SourceType identifies the upload's image family.
type SourceType string

const (
	SourceSVG SourceType = "svg"
	SourcePNG SourceType = "png"
)

// OutputFormat selects the container the pipeline produces.
type OutputFormat string

const (
	FormatICO     OutputFormat = "ico"
	FormatICNS    OutputFormat = "icns"
	FormatFavicon OutputFormat = "favicon"
	FormatPNG     OutputFormat = "png"
	FormatAll     OutputFormat = "all"
)

// JobStatus transitions pending -> processing -> terminal, never backwards.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusTimedOut   JobStatus = "timed_out"
)

// BackgroundRemovalMode selects how the pipeline neutralizes SVG backgrounds.
type BackgroundRemovalMode string

const (
	BgRemovalNone  BackgroundRemovalMode = "none"
	BgRemovalColor BackgroundRemovalMode = "color"
	BgRemovalSmart BackgroundRemovalMode = "smart"
)

// Dimensions holds pixel dimensions of a raster source.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Artifact is one produced output file.
type Artifact struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
}

// Job is one unit of conversion work. Workers receive an immutable snapshot
// of its inputs; status and timestamps are managed by the queue.
type Job struct {
	ID               string
	SourceType       SourceType
	SourceBytes      []byte
	OriginalFilename string
	Options          ConversionOptions
	SourceDimensions *Dimensions
	Deadline         time.Time
	Status           JobStatus
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
}
