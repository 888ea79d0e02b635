package models

// Sensor is the subset of the sensor record the worker needs.
type Sensor struct {
	ID             int64    `json:"id"`
	AssetID        int64    `json:"assetId"`
	OrganizationID string   `json:"organizationId"`
	Name           string   `json:"name"`
	ThresholdLow   *float64 `json:"thresholdLow"`
	ThresholdHigh  *float64 `json:"thresholdHigh"`
}

// ThresholdBounds holds the optional low/high limits of a sensor.
// A nil bound means no limit on that side. Low <= High is not enforced.
type ThresholdBounds struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
}

// Bounds returns the sensor's threshold bounds.
func (s Sensor) Bounds() ThresholdBounds {
	return ThresholdBounds{Low: s.ThresholdLow, High: s.ThresholdHigh}
}
