package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/carwatch/internal/metrics"
	"github.com/langchou/carwatch/internal/models"
)

// FetcherConfig 车辆抓取配置
type FetcherConfig struct {
	BrandTimeout time.Duration // 单个品牌的总超时，0 表示不限
	Concurrency  int           // 单个品牌内并发的车辆数，0 表示不限
}

// VehicleFetcher 按品牌抓取车辆快照
type VehicleFetcher struct {
	api     VehicleAPI
	logger  *zap.Logger
	metrics metrics.Recorder
	cfg     FetcherConfig
}

// NewVehicleFetcher 创建车辆抓取器
func NewVehicleFetcher(api VehicleAPI, logger *zap.Logger, rec metrics.Recorder, cfg FetcherConfig) *VehicleFetcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &VehicleFetcher{
		api:     api,
		logger:  logger,
		metrics: rec,
		cfg:     cfg,
	}
}

// FetchAll 依次抓取每个品牌的车辆
//
// 品牌按 records 顺序串行处理；同一品牌下的车辆并发抓取，结果按列表顺序合并。
// 品牌列表失败或单车失败都只记录日志，返回值可能比实际车辆少，但不会返回错误。
func (f *VehicleFetcher) FetchAll(ctx context.Context, records []models.TokenRecord) []models.VehicleSnapshot {
	all := []models.VehicleSnapshot{}

	if len(records) == 0 {
		f.logger.Warn("No tokens found")
		return all
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			f.logger.Warn("Vehicle fetch aborted", zap.Error(err))
			break
		}
		all = append(all, f.fetchBrand(ctx, record)...)
	}

	return all
}

// fetchBrand 抓取单个品牌的所有车辆
func (f *VehicleFetcher) fetchBrand(ctx context.Context, record models.TokenRecord) []models.VehicleSnapshot {
	if f.cfg.BrandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.BrandTimeout)
		defer cancel()
	}

	f.logger.Info("Fetching vehicles", zap.String("brand", record.Brand))

	ids, err := f.api.ListVehicles(ctx, record.AccessToken)
	if err != nil {
		f.logger.Error("Error fetching vehicles", zap.String("brand", record.Brand), zap.Error(err))
		f.metrics.RecordBrandFetch(record.Brand, false)
		return nil
	}
	f.metrics.RecordBrandFetch(record.Brand, true)

	f.logger.Info("Retrieved vehicles", zap.String("brand", record.Brand), zap.Strings("vehicle_ids", ids))

	if len(ids) == 0 {
		f.logger.Warn("No vehicles found", zap.String("brand", record.Brand))
		return nil
	}

	// 按下标写回，保证输出顺序与列表顺序一致
	results := make([]*models.VehicleSnapshot, len(ids))

	var g errgroup.Group
	if f.cfg.Concurrency > 0 {
		g.SetLimit(f.cfg.Concurrency)
	}

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			snapshot, err := f.fetchVehicle(ctx, record, id)
			if err != nil {
				f.logger.Error("Error fetching vehicle data",
					zap.String("brand", record.Brand),
					zap.String("vehicle_id", id),
					zap.Error(err))
				f.metrics.RecordVehicleFetch(record.Brand, false)
				return nil
			}
			f.metrics.RecordVehicleFetch(record.Brand, true)
			results[i] = snapshot
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make([]models.VehicleSnapshot, 0, len(ids))
	for _, s := range results {
		if s != nil {
			snapshots = append(snapshots, *s)
		}
	}
	return snapshots
}

// fetchVehicle 抓取单车的基础信息、位置和里程
func (f *VehicleFetcher) fetchVehicle(ctx context.Context, record models.TokenRecord, vehicleID string) (*models.VehicleSnapshot, error) {
	attrs, err := f.api.Attributes(ctx, vehicleID, record.AccessToken)
	if err != nil {
		return nil, err
	}

	loc, err := f.api.Location(ctx, vehicleID, record.AccessToken)
	if err != nil {
		return nil, err
	}

	odo, err := f.api.Odometer(ctx, vehicleID, record.AccessToken)
	if err != nil {
		return nil, err
	}
	if odo == nil {
		return nil, fmt.Errorf("empty odometer response")
	}

	miles := NormalizeMiles(odo.Distance, odo.Meta.UnitSystem)
	if miles == nil {
		f.logger.Warn("Unknown odometer unit system",
			zap.String("vehicle_id", vehicleID),
			zap.String("unit_system", odo.Meta.UnitSystem))
	}

	return &models.VehicleSnapshot{
		Brand:       strings.ToUpper(record.Brand),
		VehicleID:   vehicleID,
		Make:        attrs.Make,
		Model:       attrs.Model,
		Year:        attrs.Year,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		MilesDriven: miles,
	}, nil
}
