package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"faqharvest/internal/discovery"
	"faqharvest/internal/faults"
	"faqharvest/internal/navigator"
)

// FailureSentinel marks an answer that no extraction tier produced.
const FailureSentinel = "[EXTRACTION FAILED]"

// DocumentDescriptor identifies one downloaded linked document.
type DocumentDescriptor struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
}

// ExtractionRecord is the per-target outcome. Exactly one is produced
// for every target, success or not.
type ExtractionRecord struct {
	Target       string                      `json:"target"`
	URL          string                      `json:"url,omitempty"`
	Title        string                      `json:"title,omitempty"`
	Timestamp    time.Time                   `json:"timestamp"`
	Success      bool                        `json:"success"`
	FailureClass faults.Class                `json:"failure_class,omitempty"`
	Error        string                      `json:"error,omitempty"`
	Attempts     []navigator.AttemptOutcome  `json:"attempts,omitempty"`
	Method       string                      `json:"method,omitempty"`
	Degraded     bool                        `json:"degraded,omitempty"`
	Categories   []string                    `json:"categories,omitempty"`
	Pairs        []discovery.QAPair          `json:"pairs,omitempty"`
	Documents    []DocumentDescriptor        `json:"documents,omitempty"`
	PageText     string                      `json:"page_text,omitempty"`
	OCRText      string                      `json:"ocr_text,omitempty"`
	ImagesSaved  int                         `json:"images_saved,omitempty"`
	ImagesFailed int                         `json:"images_failed,omitempty"`
	ElapsedMS    int64                       `json:"elapsed_ms"`
}

// Report aggregates a full run.
type Report struct {
	StartURL        string             `json:"start_url"`
	Started         time.Time          `json:"started"`
	Finished        time.Time          `json:"finished"`
	Records         []ExtractionRecord `json:"records"`
	TotalTargets    int                `json:"total_targets"`
	Succeeded       int                `json:"succeeded"`
	SuccessRatio    float64            `json:"success_ratio"`
	TotalCategories int                `json:"total_categories"`
	TotalFAQs       int                `json:"total_faqs"`
	FilesSaved      int                `json:"files_saved"`
	ImagesSaved     int                `json:"images_saved"`
	ImagesFailed    int                `json:"images_failed"`
}

// finalize computes the aggregate counters from the records.
func (r *Report) finalize() {
	r.TotalTargets = len(r.Records)
	r.Succeeded = 0
	r.TotalCategories = 0
	r.TotalFAQs = 0
	r.ImagesSaved = 0
	r.ImagesFailed = 0
	for _, rec := range r.Records {
		if rec.Success {
			r.Succeeded++
		}
		r.TotalCategories += len(rec.Categories)
		r.TotalFAQs += len(rec.Pairs)
		r.ImagesSaved += rec.ImagesSaved
		r.ImagesFailed += rec.ImagesFailed
	}
	if r.TotalTargets > 0 {
		r.SuccessRatio = float64(r.Succeeded) / float64(r.TotalTargets)
	}
}

// ToJSON renders the report for machine consumption.
func (r *Report) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// ToText renders a human summary.
func (r *Report) ToText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Harvest of %s\n", r.StartURL)
	fmt.Fprintf(&b, "  targets: %d, succeeded: %d (%.0f%%)\n",
		r.TotalTargets, r.Succeeded, r.SuccessRatio*100)
	fmt.Fprintf(&b, "  categories: %d, faqs: %d\n", r.TotalCategories, r.TotalFAQs)
	fmt.Fprintf(&b, "  files saved: %d, images: %d saved / %d failed\n",
		r.FilesSaved, r.ImagesSaved, r.ImagesFailed)
	fmt.Fprintf(&b, "  duration: %s\n", r.Finished.Sub(r.Started).Round(time.Second))
	for _, rec := range r.Records {
		status := "ok"
		if !rec.Success {
			status = fmt.Sprintf("FAILED (%s)", rec.FailureClass)
		}
		fmt.Fprintf(&b, "  - %-30s %s  pairs=%d attempts=%d\n",
			rec.Target, status, len(rec.Pairs), len(rec.Attempts))
	}
	return b.String()
}
