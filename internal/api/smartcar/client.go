package smartcar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client Smartcar 车辆数据客户端，访问令牌按调用传入，支持多品牌
type Client struct {
	httpClient *http.Client
	apiHost    string
	limiter    *rate.Limiter
}

// NewClient 创建车辆数据客户端，limiter 为 nil 时不限速
func NewClient(apiHost string, timeout time.Duration, limiter *rate.Limiter) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiHost: strings.TrimRight(apiHost, "/"),
		limiter: limiter,
	}
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string) (*http.Response, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("not authenticated")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Carwatch/1.0")

	return c.httpClient.Do(req)
}

// getJSON 发送 GET 请求并解码响应，返回响应头供调用方读取元数据
func (c *Client) getJSON(ctx context.Context, path, accessToken string, out interface{}) (http.Header, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 处理不同状态码
	switch resp.StatusCode {
	case http.StatusOK:
		// 正常
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrVehicleNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("request %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return resp.Header, nil
}

// ListVehicles 获取令牌下的车辆 ID 列表，保持服务端返回顺序
func (c *Client) ListVehicles(ctx context.Context, accessToken string) ([]string, error) {
	var resp vehiclesResponse
	if _, err := c.getJSON(ctx, "/vehicles", accessToken, &resp); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return resp.Vehicles, nil
}

// Attributes 获取车辆品牌、型号、年份
func (c *Client) Attributes(ctx context.Context, vehicleID, accessToken string) (*Attributes, error) {
	var attrs Attributes
	if _, err := c.getJSON(ctx, vehiclePath(vehicleID, ""), accessToken, &attrs); err != nil {
		return nil, fmt.Errorf("get attributes: %w", err)
	}
	return &attrs, nil
}

// Location 获取车辆位置
func (c *Client) Location(ctx context.Context, vehicleID, accessToken string) (*Location, error) {
	var loc Location
	if _, err := c.getJSON(ctx, vehiclePath(vehicleID, "/location"), accessToken, &loc); err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// Odometer 获取里程
// 单位制优先取响应体中的 meta，其次取 sc-unit-system 响应头
func (c *Client) Odometer(ctx context.Context, vehicleID, accessToken string) (*Odometer, error) {
	var odo Odometer
	header, err := c.getJSON(ctx, vehiclePath(vehicleID, "/odometer"), accessToken, &odo)
	if err != nil {
		return nil, fmt.Errorf("get odometer: %w", err)
	}
	if odo.Meta.UnitSystem == "" {
		odo.Meta.UnitSystem = header.Get(unitSystemHeader)
	}
	return &odo, nil
}

func vehiclePath(vehicleID, suffix string) string {
	return "/vehicles/" + url.PathEscape(vehicleID) + suffix
}
