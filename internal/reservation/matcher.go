package reservation

import (
	"context"
	"fmt"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
)

type vehicleSource interface {
	ListByModel(ctx context.Context, modelID string) ([]fleet.Vehicle, error)
}

type modelSource interface {
	FindByID(ctx context.Context, id string) (*catalog.CarModel, error)
	List(ctx context.Context, category catalog.Category, offset, limit int) ([]catalog.CarModel, int64, error)
}

// Matcher 可用性匹配：从车型的车辆中挑出一辆满足区间索引
// （客户请求还要过资格门）的具体车辆。
type Matcher struct {
	vehicles vehicleSource
	models   modelSource
	checker  *Checker
	gate     *Gate
}

func NewMatcher(vehicles vehicleSource, models modelSource, checker *Checker, gate *Gate) *Matcher {
	return &Matcher{
		vehicles: vehicles,
		models:   models,
		checker:  checker,
		gate:     gate,
	}
}

// FindVehicle 为 [start, end) 的租期挑选车辆。
// score 为 nil 表示员工发起（跳过资格门）。excludeID 用于换车时排除预订自身。
// 查询窗口的结束侧叠加整备缓冲（与既有预订一侧的缓冲相互独立）。
// 候选中选择累计里程最低者（同里程取 ID 较小者）——确定性的损耗均衡。
// 无车可用返回 (nil, nil)，由调用方决定如何呈现。
func (m *Matcher) FindVehicle(ctx context.Context, modelID string, w Window, score *int, excludeID string) (*fleet.Vehicle, error) {
	if !w.Valid() {
		return nil, invalidf("drop-off must be after pick-up")
	}

	model, err := m.models.FindByID(ctx, modelID)
	if err != nil {
		return nil, notFound(err, "model", modelID)
	}

	if score != nil && !m.gate.CanRent(*score, model.Category) {
		return nil, NewConflict(ConflictScoreTooLow,
			fmt.Sprintf("category %s requires a higher eligibility score", model.Category))
	}

	return m.pick(ctx, modelID, w, excludeID, "")
}

// FindReplacement 换车专用：与 FindVehicle 同样的挑选规则，
// 但额外排除当前占用的车辆（换车要换到另一辆上）。资格门不再复核，
// 换车是员工操作且预订早已通过审核。
func (m *Matcher) FindReplacement(ctx context.Context, modelID string, w Window, excludeResID, excludeVehicleID string) (*fleet.Vehicle, error) {
	if !w.Valid() {
		return nil, invalidf("drop-off must be after pick-up")
	}
	return m.pick(ctx, modelID, w, excludeResID, excludeVehicleID)
}

func (m *Matcher) pick(ctx context.Context, modelID string, w Window, excludeResID, excludeVehicleID string) (*fleet.Vehicle, error) {
	query := Window{Start: w.Start, End: m.checker.Buffered(w.End)}

	vehicles, err := m.vehicles.ListByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	var best *fleet.Vehicle
	for i := range vehicles {
		v := &vehicles[i]
		if v.ID == excludeVehicleID {
			continue
		}
		free, err := m.checker.IsVehicleFree(ctx, v.ID, query, excludeResID)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}
		if best == nil || v.OdometerKM < best.OdometerKM ||
			(v.OdometerKM == best.OdometerKM && v.ID < best.ID) {
			best = v
		}
	}
	return best, nil
}

// ListAvailableModels 搜索结果用：车型至少有一辆车通过同样的空闲检查才入选；
// 客户调用时类别还要过资格门。
func (m *Matcher) ListAvailableModels(ctx context.Context, w Window, score *int, offset, limit int) ([]catalog.CarModel, error) {
	if !w.Valid() {
		return nil, invalidf("drop-off must be after pick-up")
	}

	models, _, err := m.models.List(ctx, "", offset, limit)
	if err != nil {
		return nil, err
	}

	query := Window{Start: w.Start, End: m.checker.Buffered(w.End)}

	out := make([]catalog.CarModel, 0, len(models))
	for i := range models {
		model := &models[i]
		if score != nil && !m.gate.CanRent(*score, model.Category) {
			continue
		}
		vehicles, err := m.vehicles.ListByModel(ctx, model.ID)
		if err != nil {
			return nil, err
		}
		for j := range vehicles {
			free, err := m.checker.IsVehicleFree(ctx, vehicles[j].ID, query, "")
			if err != nil {
				return nil, err
			}
			if free {
				out = append(out, *model)
				break
			}
		}
	}
	return out, nil
}
