// Package loop runs one closed-loop decision: it reconciles the dose
// history, projects insulin and carb effects, predicts glucose and turns
// the prediction into temp basal and bolus recommendations.
package loop

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/loop-engine/internal/carbs"
	"github.com/mrcode/loop-engine/internal/dosing"
	"github.com/mrcode/loop-engine/internal/insulin"
	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/prediction"
)

// Engine runs decisions against a fixed base configuration
type Engine struct {
	settings  models.Settings
	validator Validator
	cache     EffectCache
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithValidator sets the admission validator. Without one every request
// with well-formed schedules is admitted.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithCache sets the store used for requests that carry a cache key
func WithCache(c EffectCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. Request tunables override settings.
func NewEngine(settings models.Settings, opts ...Option) *Engine {
	e := &Engine{settings: settings, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the base settings
func (e *Engine) Settings() models.Settings {
	return e.settings
}

// run holds the state of one invocation
type run struct {
	id        string
	req       *models.Request
	settings  models.Settings
	model     insulin.Model
	schedules *Schedules
	doses     []models.Dose
	glucose   []models.GlucoseSample
	logger    *zap.Logger
}

// Run computes the prediction and recommendations for req.
//
// Malformed requests return an error and no result. Requests that are not
// admitted return an empty result and a *RejectedError.
func (e *Engine) Run(ctx context.Context, req *models.Request) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r, err := e.admit(ctx, req)
	if err != nil {
		return &models.Result{CalculatedAt: req.Now}, err
	}

	effects, iob, err := e.effects(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cob := e.carbsOnBoard(r, effects.Counteraction)

	result := &models.Result{
		RunID:        r.id,
		Effects:      *effects,
		COB:          cob,
		IOB:          iob,
		CalculatedAt: req.Now,
	}
	result.CurrentCOB, _ = models.ValueAt(cob, req.Now)
	result.CurrentIOB, _ = models.ValueAt(iob, req.Now)

	e.recommend(r, result)

	r.logger.Debug("run complete",
		zap.Int("predicted", len(result.Predicted)),
		zap.Float64("iob", result.CurrentIOB),
		zap.Float64("cob", result.CurrentCOB),
	)
	return result, nil
}

// admit decodes the schedules and applies the validator
func (e *Engine) admit(ctx context.Context, req *models.Request) (*run, error) {
	id := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", id))

	schedules, err := DecodeSchedules(req)
	if err != nil {
		logger.Warn("request rejected", zap.Error(err))
		return nil, reject(err)
	}

	if e.validator != nil {
		if d := e.validator.Validate(ctx, req); !d.Accepted {
			logger.Warn("request rejected", zap.Strings("reasons", d.Reasons))
			return nil, reject(nil, d.Reasons...)
		}
	}

	model, err := insulin.FromParams(req.Model)
	if err != nil {
		logger.Warn("request rejected", zap.Error(err))
		return nil, reject(err)
	}

	glucose := lo.Filter(req.Glucose, func(g models.GlucoseSample, _ int) bool {
		return !g.Time.After(req.Now)
	})
	if len(glucose) == 0 {
		logger.Warn("request rejected: no glucose readings")
		return nil, reject(nil, "no glucose readings at or before now")
	}
	slices.SortStableFunc(glucose, func(a, b models.GlucoseSample) int { return a.Time.Compare(b.Time) })

	doses := insulin.Reconcile(req.Doses)
	insulin.SortByStart(doses)
	doses = insulin.Annotate(doses, schedules.Basal)

	logger.Debug("request admitted",
		zap.Int("glucose", len(glucose)),
		zap.Int("doses", len(doses)),
		zap.Int("carbs", len(req.Carbs)),
	)

	return &run{
		id:        id,
		req:       req,
		settings:  e.settings.Apply(req.Settings),
		model:     model,
		schedules: schedules,
		doses:     doses,
		glucose:   glucose,
		logger:    logger,
	}, nil
}

func (r *run) lastGlucose() models.GlucoseSample {
	return r.glucose[len(r.glucose)-1]
}

func (r *run) projector() *insulin.Projector {
	return insulin.NewProjector(r.model, r.settings.InsulinDelay, r.settings.Delta)
}

func (r *run) insulinWindow() insulin.Window {
	p := r.projector()
	return insulin.Window{
		Start: r.glucose[0].Time,
		End:   r.req.Now.Add(p.EffectDuration()),
	}
}

func (r *run) carbWindow() carbs.Window {
	return carbs.Window{Start: r.glucose[0].Time}
}

// effects returns the effect series and the insulin-on-board series. Series
// supplied with the request are used verbatim, then series found in the
// cache, and whatever is still missing is computed.
func (e *Engine) effects(ctx context.Context, r *run) (*models.Effects, []models.EffectPoint, error) {
	iob := r.projector().OnBoard(r.doses, r.insulinWindow())

	known := r.req.Precomputed.Merged(nil)
	if !known.IsEmpty() {
		r.logger.Debug("using precomputed effects", zap.Strings("series", known.Present()))
	}

	key := r.req.CacheKey
	useCache := e.cache != nil && key != ""
	hit := false
	if useCache {
		cached, found, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("effect cache read failed", zap.String("key", key), zap.Error(err))
		case found && !cached.IsEmpty():
			r.logger.Debug("using cached effects", zap.String("key", key), zap.Strings("series", cached.Present()))
			known = known.Merged(cached)
			hit = true
		}
	}

	effects, err := e.computeEffects(ctx, r, known)
	if err != nil {
		return nil, nil, err
	}

	if useCache && !hit {
		if err := e.cache.Set(ctx, key, effects); err != nil {
			r.logger.Warn("effect cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return effects, iob, nil
}

// computeEffects fills in every series missing from known. Counteraction
// is derived from the insulin series in use, carbs from that
// counteraction, and the retrospective correction from both.
func (e *Engine) computeEffects(ctx context.Context, r *run, known *models.Effects) (*models.Effects, error) {
	s := r.settings
	sched := r.schedules
	carbEngine := carbs.NewEngine(s)
	effects := known.Merged(nil)

	var (
		insulinEffects = effects.Insulin
		staticCarbs    []models.EffectPoint
	)
	projectInsulin := func() error {
		if len(insulinEffects) == 0 {
			insulinEffects = r.projector().GlucoseEffects(r.doses, sched.Sensitivity, r.insulinWindow())
		}
		return nil
	}
	projectStaticCarbs := func() error {
		if len(effects.Carbs) == 0 && !s.DynamicCarbAbsorption {
			staticCarbs = carbEngine.GlucoseEffects(r.req.Carbs, sched.Sensitivity, sched.CarbRatio, r.carbWindow())
		}
		return nil
	}

	if s.ParallelEffects {
		g, _ := errgroup.WithContext(ctx)
		g.Go(projectInsulin)
		g.Go(projectStaticCarbs)
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		_ = projectInsulin()
		_ = projectStaticCarbs()
	}
	effects.Insulin = insulinEffects

	if len(effects.Momentum) == 0 {
		effects.Momentum = prediction.LinearMomentum(r.glucose, s.MomentumWindow, s.MomentumDuration, s.Delta)
		if effects.Momentum == nil {
			r.logger.Debug("no momentum effect")
		}
	}

	if len(effects.Counteraction) == 0 {
		effects.Counteraction = prediction.Counteraction(r.glucose, effects.Insulin)
	}

	if len(effects.Carbs) == 0 {
		if s.DynamicCarbAbsorption {
			statuses := carbEngine.MapAbsorption(r.req.Carbs, effects.Counteraction, sched.Sensitivity, sched.CarbRatio)
			effects.Carbs = carbEngine.DynamicGlucoseEffects(statuses, r.carbWindow())
		} else {
			effects.Carbs = staticCarbs
		}
	}

	if len(effects.Retrospective) == 0 && s.RetrospectiveCorrection {
		retro := prediction.NewRetrospective(s)
		effects.Retrospective = retro.Effect(r.lastGlucose(), effects.Counteraction, effects.Carbs, r.req.Now)
	}

	r.logger.Debug("effects ready",
		zap.Int("insulin", len(effects.Insulin)),
		zap.Int("carbs", len(effects.Carbs)),
		zap.Int("counteraction", len(effects.Counteraction)),
		zap.Int("momentum", len(effects.Momentum)),
		zap.Int("retrospective", len(effects.Retrospective)),
	)
	return effects, nil
}

func (e *Engine) carbsOnBoard(r *run, counteraction []models.Velocity) []models.EffectPoint {
	carbEngine := carbs.NewEngine(r.settings)
	if r.settings.DynamicCarbAbsorption {
		statuses := carbEngine.MapAbsorption(r.req.Carbs, counteraction, r.schedules.Sensitivity, r.schedules.CarbRatio)
		return carbEngine.DynamicOnBoard(statuses, r.carbWindow())
	}
	return carbEngine.OnBoard(r.req.Carbs, r.carbWindow())
}

// recommend fills in the prediction and the dosing recommendations
func (e *Engine) recommend(r *run, result *models.Result) {
	fx := result.Effects
	series := [][]models.EffectPoint{fx.Insulin, fx.Carbs}
	if r.settings.RetrospectiveCorrection {
		series = append(series, fx.Retrospective)
	}
	result.Predicted = prediction.Predict(r.lastGlucose(), r.model.Duration(), fx.Momentum, series...)

	now := r.req.Now
	rec := dosing.NewRecommender(r.model, r.settings)
	correction := rec.InsulinCorrection(result.Predicted, r.schedules.Targets, r.schedules.Sensitivity, now)

	scheduled := r.schedules.Basal.ValueAt(now)
	result.TempBasal = rec.IfNecessary(rec.TempBasal(correction, scheduled), scheduled, r.req.LastTempBasal, now)

	pending := dosing.PendingInsulin(r.req.LastTempBasal, scheduled, r.req.PendingBolus, now)
	result.Bolus = rec.Bolus(correction, pending)

	fields := []zap.Field{
		zap.String("correction", correction.Kind()),
		zap.Float64("units", correction.Units()),
		zap.Float64("scheduled_rate", scheduled),
	}
	if result.TempBasal != nil {
		fields = append(fields, zap.Float64("temp_rate", result.TempBasal.Rate), zap.Bool("cancel", result.TempBasal.IsCancel()))
	}
	r.logger.Info("recommendation", fields...)
}
