package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/cardbot/internal/render"
)

// newFontWarmupTask loads the configured preload families so that the first
// render using them does not pay for parsing. Every family is attempted; the
// failures are returned together.
func newFontWarmupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", FontWarmup)

	return func(ctx context.Context) error {
		families := warmupFamilies(deps.Config.Renderer.DefaultFamily, deps.Config.Renderer.PreloadFamilies)

		var errs []error
		loaded := 0
		for _, family := range families {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := deps.Fonts.Load(ctx, family); err != nil {
				log.WarnContext(ctx, "Failed to preload font", "family", family, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", family, err))
				continue
			}
			loaded++
		}

		log.InfoContext(ctx, "Font warmup finished", "loaded", loaded, "failed", len(errs))
		return errors.Join(errs...)
	}
}

// warmupFamilies returns the default family followed by the preload list,
// without blanks and without names the font cache treats as equal.
func warmupFamilies(defaultFamily string, preload []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, family := range append([]string{defaultFamily}, preload...) {
		key := render.FamilyKey(family)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, family)
	}
	return out
}
