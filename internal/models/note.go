package models

// Note 车辆保养备注
type Note struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Note     string  `json:"note"`
	Odometer float64 `json:"odometer"`
}
