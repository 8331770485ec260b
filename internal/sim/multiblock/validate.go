package multiblock

import (
	"context"
	"errors"

	"github.com/df-mc/dragonfly/server/block/cube"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("turbinecraft.ai/internal/sim/multiblock")

// Validate checks the registry against the cuboid grammar of rules and then
// the kind layout. The first failure is returned as a *ValidationError.
func Validate(ctx context.Context, rules *Rules, reg *Registry, grid Grid) (layout any, err error) {
	ctx, span := tracer.Start(ctx, "multiblock.Validate", trace.WithAttributes(
		attribute.String("multiblock.kind", string(rules.Kind)),
		attribute.Int("multiblock.parts", reg.Len()),
	))
	defer func() {
		span.SetAttributes(attribute.String("multiblock.result", CodeOf(err)))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if reg.Len() < rules.MinimumParts() {
		return nil, Fail(CodeTooFewParts, rules.MinimumParts())
	}
	box, _ := reg.Box()
	size := box.Size()
	for i := 0; i < 3; i++ {
		if hi := rules.MaxSize(i); hi > 0 && size[i] > hi {
			return nil, Fail(CodeTooLarge, hi, axisNames[i])
		}
	}
	for i := 0; i < 3; i++ {
		if lo := rules.MinSize(i); size[i] < lo {
			return nil, Fail(CodeTooSmall, lo, axisNames[i])
		}
	}

	if verr := scanCuboid(rules, reg, grid, box); verr != nil {
		return nil, verr
	}
	if rules.Layout == nil {
		return nil, nil
	}
	return rules.Layout(ctx, &Scan{Rules: rules, Registry: reg, Grid: grid, Box: box})
}

func scanCuboid(rules *Rules, reg *Registry, grid Grid, box Box) *ValidationError {
	var verr *ValidationError
	box.Each(func(p cube.Pos) bool {
		if grid != nil && !grid.IsLoaded(p) {
			verr = FailAt(CodeNotLoaded, p)
			return false
		}
		part, ok := reg.Get(p)
		if !ok && grid != nil {
			part, ok = grid.PartAt(p)
		}
		if ok && part.Kind != rules.Kind {
			verr = FailAt(CodeInvalidPart, p, string(part.Kind))
			return false
		}
		role := box.Role(p)
		var good bool
		if ok {
			good = rules.allows(part.Type, role)
		} else if rules.Filler != nil {
			m := MaterialAir | MaterialReplaceable
			if grid != nil {
				m = grid.MaterialAt(p)
			}
			good = rules.Filler(role, p, m)
		}
		if !good {
			verr = FailAt(roleCode(role), p)
			return false
		}
		return true
	})
	return verr
}

// CodeOf extracts the validation code of err: "ok" for nil, "error" for
// anything that is not a *ValidationError.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return "error"
}
