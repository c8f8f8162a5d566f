package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrcode/loop-engine/internal/loop"
	"github.com/mrcode/loop-engine/internal/models"
)

// Scenario is a hypothetical treatment added at the request's now
type Scenario struct {
	Insulin        float64 // U, delivered as a bolus
	Carbs          float64 // g
	AbsorptionTime float64 // Minutes, 0 = medium preset
}

// IsZero returns true if the scenario adds nothing
func (s Scenario) IsZero() bool {
	return s.Insulin == 0 && s.Carbs == 0
}

// Apply returns a copy of req with the scenario's treatments appended
func (s Scenario) Apply(req *models.Request) *models.Request {
	if s.IsZero() {
		return req
	}
	out := *req
	out.Doses = append([]models.Dose(nil), req.Doses...)
	out.Carbs = append([]models.CarbEntry(nil), req.Carbs...)
	if s.Insulin > 0 {
		out.Doses = append(out.Doses, models.Dose{Kind: models.DoseBolus, Start: req.Now, End: req.Now, Value: s.Insulin})
	}
	if s.Carbs > 0 {
		out.Carbs = append(out.Carbs, models.CarbEntry{Start: req.Now, Grams: s.Carbs, AbsorptionTime: s.AbsorptionTime})
	}
	// Cached effects belong to the unmodified history
	out.CacheKey = ""
	out.Precomputed = nil
	return &out
}

// OnBoard is a current on-board amount with its series
type OnBoard struct {
	Current float64              `json:"current" yaml:"current"`
	Unit    string               `json:"unit" yaml:"unit"`
	Series  []models.EffectPoint `json:"series" yaml:"series"`
}

// Service runs engine invocations for the CLI
type Service struct {
	engine *loop.Engine
	logger *zap.Logger
}

// NewService creates a service around engine
func NewService(engine *loop.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, logger: logger}
}

// Recommend runs the full decision for req with an optional scenario
func (s *Service) Recommend(ctx context.Context, req *models.Request, scenario Scenario) (*models.Result, error) {
	if !scenario.IsZero() {
		s.logger.Debug("applying scenario",
			zap.Float64("insulin", scenario.Insulin),
			zap.Float64("carbs", scenario.Carbs),
		)
	}
	return s.engine.Run(ctx, scenario.Apply(req))
}

// Effects returns the effect series computed for req
func (s *Service) Effects(ctx context.Context, req *models.Request) (*models.Effects, error) {
	result, err := s.engine.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &result.Effects, nil
}

// InsulinOnBoard returns the insulin on board for req
func (s *Service) InsulinOnBoard(ctx context.Context, req *models.Request) (*OnBoard, error) {
	result, err := s.engine.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("insulin on board: %w", err)
	}
	return &OnBoard{Current: result.CurrentIOB, Unit: "U", Series: result.IOB}, nil
}

// CarbsOnBoard returns the carbs on board for req
func (s *Service) CarbsOnBoard(ctx context.Context, req *models.Request) (*OnBoard, error) {
	result, err := s.engine.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("carbs on board: %w", err)
	}
	return &OnBoard{Current: result.CurrentCOB, Unit: "g", Series: result.COB}, nil
}
