package models

import "time"

// ConversionMetric is the append-only record of one completed or failed job.
type ConversionMetric struct {
	ID                string    `json:"id" db:"id"`
	IdentityHash      string    `json:"identity_hash" db:"identity_hash"`
	InputFormat       string    `json:"input_format" db:"input_format"`
	OutputFormat      string    `json:"output_format" db:"output_format"`
	InputBytes        int64     `json:"input_bytes" db:"input_bytes"`
	OutputBytes       *int64    `json:"output_bytes,omitempty" db:"output_bytes"`
	ProcessingMs      int64     `json:"processing_ms" db:"processing_ms"`
	Success           bool      `json:"success" db:"success"`
	ErrorMessage      *string   `json:"error_message,omitempty" db:"error_message"`
	ConversionOptions string    `json:"conversion_options" db:"conversion_options"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// MetricsSummary aggregates conversion metrics for the admin stats view.
type MetricsSummary struct {
	TotalConversions int64            `json:"total_conversions" db:"total_conversions"`
	Succeeded        int64            `json:"succeeded" db:"succeeded"`
	Failed           int64            `json:"failed" db:"failed"`
	AvgProcessingMs  float64          `json:"avg_processing_ms" db:"avg_processing_ms"`
	ByOutputFormat   map[string]int64 `json:"by_output_format"`
	ByInputFormat    map[string]int64 `json:"by_input_format"`
}
