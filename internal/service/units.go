package service

import (
	"math"

	"github.com/langchou/carwatch/internal/api/smartcar"
)

// kmToMiles 公里转英里
const kmToMiles = 0.621371

// NormalizeMiles 把里程统一为整数英里
// 单位制未知或距离缺失时返回 nil，不做猜测
func NormalizeMiles(distance *float64, unitSystem string) *int {
	if distance == nil || math.IsNaN(*distance) || math.IsInf(*distance, 0) {
		return nil
	}

	var miles float64
	switch unitSystem {
	case smartcar.UnitSystemImperial:
		miles = *distance
	case smartcar.UnitSystemMetric:
		miles = *distance * kmToMiles
	default:
		return nil
	}

	rounded := int(math.Round(miles))
	return &rounded
}
