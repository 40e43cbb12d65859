package chart

import "errors"

var (
	// ErrChartNotFound is returned when no dark four-sided border above the
	// minimum area is visible in the frame.
	ErrChartNotFound = errors.New("chart not found")

	// ErrPatchCountMismatch is returned when the patch grid cannot be brought
	// to exactly rows×cols entries, or the measured colours do not line up
	// with the reference colours.
	ErrPatchCountMismatch = errors.New("patch count mismatch")
)
