package reservation

import (
	"sort"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
)

// Gate 资格门：把客户信誉分（0-100）映射为可租的车型类别集合。
// 员工发起的操作不经过它。
type Gate struct {
	thresholds map[catalog.Category]int
}

func NewGate(categoryMinScore map[string]int) *Gate {
	thresholds := make(map[catalog.Category]int, len(categoryMinScore))
	for cat, min := range categoryMinScore {
		thresholds[catalog.Category(cat)] = min
	}
	return &Gate{thresholds: thresholds}
}

// CanRent score ≥ threshold(category) 即可租。
// 未配置门槛的类别视为门槛 0（可租），由配置默认值保证常规类别都有门槛。
func (g *Gate) CanRent(score int, category catalog.Category) bool {
	return score >= g.thresholds[category]
}

// RentableCategories 列出该信誉分可租的全部类别（字典序，保证确定性）。
func (g *Gate) RentableCategories(score int) []catalog.Category {
	out := make([]catalog.Category, 0, len(g.thresholds))
	for cat, min := range g.thresholds {
		if score >= min {
			out = append(out, cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Evaluation 还车评价，结算时由员工录入。
type Evaluation struct {
	WasDeliveryLate       bool
	WasChargedFee         bool
	WasInvolvedInAccident bool
	DamageLevel           int
	DirtinessLevel        int
}

// Clean 无任何负面项。
func (e Evaluation) Clean() bool {
	return !e.WasDeliveryLate && !e.WasChargedFee && !e.WasInvolvedInAccident &&
		e.DamageLevel == 0 && e.DirtinessLevel == 0
}

// ScoreRule 结算时的信誉分重算规则：
// 各负面项独立扣分，损伤/脏污按级别乘单位扣分；全部干净则加固定奖励；
// 结果始终钳制在 [0,100]，重复结算也不会越界。
type ScoreRule struct {
	cfg config.ScoreConfig
}

func NewScoreRule(cfg config.ScoreConfig) ScoreRule {
	return ScoreRule{cfg: cfg}
}

func (s ScoreRule) Recompute(current int, e Evaluation) int {
	score := current
	if e.WasDeliveryLate {
		score -= s.cfg.LateDeliveryPenalty
	}
	if e.WasChargedFee {
		score -= s.cfg.ChargedFeePenalty
	}
	if e.WasInvolvedInAccident {
		score -= s.cfg.AccidentPenalty
	}
	score -= e.DamageLevel * s.cfg.DamageUnitPenalty
	score -= e.DirtinessLevel * s.cfg.DirtinessUnitPenalty

	if e.Clean() {
		score += s.cfg.CleanReturnBonus
	}

	return clampScore(score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
