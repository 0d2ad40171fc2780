package smartcar

import "errors"

// 授权范围
const (
	ScopeReadVehicleInfo = "read_vehicle_info"
	ScopeReadOdometer    = "read_odometer"
	ScopeReadLocation    = "read_location"
)

// DefaultScopes 车辆信息、里程、位置
var DefaultScopes = []string{ScopeReadVehicleInfo, ScopeReadOdometer, ScopeReadLocation}

// 单位制
const (
	UnitSystemImperial = "imperial"
	UnitSystemMetric   = "metric"
)

// unitSystemHeader 里程接口通过响应头返回单位制
const unitSystemHeader = "sc-unit-system"

// Access 授权码或刷新令牌交换的结果
type Access struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // 秒
}

// vehiclesResponse 车辆列表响应
type vehiclesResponse struct {
	Vehicles []string `json:"vehicles"`
	Paging   struct {
		Count  int `json:"count"`
		Offset int `json:"offset"`
	} `json:"paging"`
}

// Attributes 车辆基础信息
type Attributes struct {
	ID    string `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// Location 车辆位置
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Meta 响应元数据
type Meta struct {
	UnitSystem string `json:"unitSystem,omitempty"`
}

// Odometer 里程，Distance 为 nil 表示服务端未返回
type Odometer struct {
	Distance *float64 `json:"distance"`
	Meta     Meta     `json:"meta"`
}

// 错误定义
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrNoAccessToken   = errors.New("no access token in response")
)
