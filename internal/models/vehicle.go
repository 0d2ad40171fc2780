package models

import "strconv"

// VehicleSnapshot 车辆某一时刻的聚合快照
type VehicleSnapshot struct {
	Brand       string  `json:"brand"`
	VehicleID   string  `json:"vehicleId,omitempty"`
	Make        string  `json:"make"`
	Model       string  `json:"model"`
	Year        int     `json:"year"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MilesDriven *int    `json:"milesDriven"` // nil 表示里程未知
	Notes       []Note  `json:"notes,omitempty"`
}

// MilesLabel 里程显示文本
func (v VehicleSnapshot) MilesLabel() string {
	if v.MilesDriven == nil {
		return "N/A"
	}
	return strconv.Itoa(*v.MilesDriven) + " mi"
}

// CloneSnapshots 复制快照列表，避免调用方修改缓存中的数据
func CloneSnapshots(in []VehicleSnapshot) []VehicleSnapshot {
	if in == nil {
		return nil
	}
	out := make([]VehicleSnapshot, len(in))
	for i, v := range in {
		if v.MilesDriven != nil {
			miles := *v.MilesDriven
			v.MilesDriven = &miles
		}
		if v.Notes != nil {
			v.Notes = append([]Note(nil), v.Notes...)
		}
		out[i] = v
	}
	return out
}
