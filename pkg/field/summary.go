package field

import "fmt"

// Summary counts entities per status
type Summary struct {
	Total              int
	OK                 int
	Fallback           int
	FallbackToCentroid int
	OutOfBounds        int
	CalibrationRange   int
	AggregationGap     int
}

func (s *Summary) add(st Status) {
	switch st {
	case StatusOK:
		s.OK++
	case StatusFallback:
		s.Fallback++
	case StatusFallbackToCentroid:
		s.FallbackToCentroid++
	case StatusOutOfBounds:
		s.OutOfBounds++
	case StatusCalibrationRange:
		s.CalibrationRange++
	case StatusAggregationGap:
		s.AggregationGap++
	}
}

// Fallbacks counts both fallback kinds.
func (s Summary) Fallbacks() int {
	return s.Fallback + s.FallbackToCentroid
}

// Errors counts entities without a usable value.
func (s Summary) Errors() int {
	return s.OutOfBounds + s.CalibrationRange + s.AggregationGap
}

func (s Summary) String() string {
	return fmt.Sprintf("%d entities: %d ok, %d fallback (%d default, %d centroid), %d error",
		s.Total, s.OK, s.Fallbacks(), s.Fallback, s.FallbackToCentroid, s.Errors())
}
