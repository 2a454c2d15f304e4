package domain

import (
	"errors"
	"fmt"
)

type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

const (
	HighConfidencePct   = 90.0
	MediumConfidencePct = 70.0
)

// AverageConfidence returns the mean field confidence of doc as a percentage
// in [0,100]. Documents without fields score 0.
func AverageConfidence(doc Document) float64 {
	if len(doc.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range doc.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(doc.Fields)) * 100
}

// ClassifyConfidence maps a percentage onto its review band.
func ClassifyConfidence(pct float64) ConfidenceBand {
	switch {
	case pct >= HighConfidencePct:
		return BandHigh
	case pct >= MediumConfidencePct:
		return BandMedium
	default:
		return BandLow
	}
}

// CanApprove gates the approval action: fields must be present and the
// average confidence must reach threshold (a percentage).
func CanApprove(doc Document, threshold float64) error {
	if len(doc.Fields) == 0 {
		return WrapError(ErrInvalidTransition, "approve", errors.New("document has no extracted fields"))
	}
	if avg := AverageConfidence(doc); avg < threshold {
		return WrapError(ErrInvalidTransition, "approve", fmt.Errorf("average confidence %.1f is below %.1f", avg, threshold))
	}
	return nil
}
