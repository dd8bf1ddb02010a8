package spc

import (
	"math"
	"time"
)

// Distance describes how far a scored point sits from its control limits.
type Distance struct {
	Key       string    `json:"key"`
	Time      time.Time `json:"time"`
	ZBaseline Float     `json:"z_baseline"`
	DistToUCL Float     `json:"dist_to_ucl"`
	DistToLCL Float     `json:"dist_to_lcl"`
	NearLimit bool      `json:"near_limit"`
	// RowsSinceAlert counts rows since the step's previous alert, 0 on an
	// alert row. Undefined before the first alert of the step.
	RowsSinceAlert Float `json:"rows_since_alert"`
}

// DistanceFeatures derives limit distances for scored points, which must be
// in the (key, time) order returned by ScorePoints.
func DistanceFeatures(points []ScoredPoint) []Distance {
	out := make([]Distance, len(points))
	since := RowsSinceLastAlert(points)
	for i, p := range points {
		l := p.Limits
		d := Distance{
			Key:            p.Key,
			Time:           p.Time,
			ZBaseline:      p.Z,
			RowsSinceAlert: since[i],
		}
		if l.UCL.Valid {
			d.DistToUCL = Some(l.UCL.V - p.Value)
		}
		if l.LCL.Valid {
			d.DistToLCL = Some(p.Value - l.LCL.V)
		}
		d.NearLimit = p.Z.Valid && math.Abs(p.Z.V) > NearLimitZ
		out[i] = d
	}
	return out
}

// RowsSinceLastAlert folds over each step's rows carrying the index of the
// last alert. Steps are independent, so the fold restarts at every key change.
func RowsSinceLastAlert(points []ScoredPoint) []Float {
	out := make([]Float, len(points))
	last := -1
	for i, p := range points {
		if i == 0 || p.Key != points[i-1].Key {
			last = -1
		}
		switch {
		case p.Alert:
			last = i
			out[i] = Some(0)
		case last >= 0:
			out[i] = Some(float64(i - last))
		}
	}
	return out
}
