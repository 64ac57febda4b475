// Package pipeline sequences the conversion run: resolve the epoch range,
// emit the system, pool, and project documents, then generate applications
// per epoch. Epochs are independent; a failed or unconcluded epoch never
// blocks any other epoch's output.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/octant-daoip5/internal/config"
	"github.com/yourorg/octant-daoip5/internal/convert"
	"github.com/yourorg/octant-daoip5/internal/metrics"
	"github.com/yourorg/octant-daoip5/internal/octant"
	"github.com/yourorg/octant-daoip5/internal/otel"
	"github.com/yourorg/octant-daoip5/internal/rates"
	"github.com/yourorg/octant-daoip5/internal/writer"
)

// Selection is the epoch range requested on the command line. Zero values
// mean "all epochs from 1 to current".
type Selection struct {
	// Single epoch to process; 0 means unset.
	Epoch int

	// Explicit epoch list; wins over Epoch when non-empty.
	Epochs []int

	// Process only the current epoch.
	Current bool
}

// Resolve expands the selection against the current epoch. Explicit lists are
// deduplicated and sorted.
func (s Selection) Resolve(current int) []int {
	switch {
	case len(s.Epochs) > 0:
		seen := make(map[int]bool)
		var out []int
		for _, e := range s.Epochs {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
		sort.Ints(out)
		return out
	case s.Epoch != 0:
		return []int{s.Epoch}
	case s.Current:
		return []int{current}
	default:
		out := make([]int, 0, current)
		for e := 1; e <= current; e++ {
			out = append(out, e)
		}
		return out
	}
}

// Runner is the composition root for one conversion run.
type Runner struct {
	cfg     config.Config
	client  *octant.Client
	rates   *rates.Cache
	out     *writer.Writer
	command string
}

// New creates a Runner. command is echoed into the generation summary.
func New(cfg config.Config, client *octant.Client, rateCache *rates.Cache, out *writer.Writer, command string) *Runner {
	return &Runner{
		cfg:     cfg,
		client:  client,
		rates:   rateCache,
		out:     out,
		command: command,
	}
}

// Run executes the full conversion. Only two things abort it: cancellation
// and an unreachable current epoch, without which no epoch range exists and
// no partial output would be useful.
func (r *Runner) Run(ctx context.Context, sel Selection) error {
	current, err := r.client.CurrentEpoch(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("could not fetch current epoch")
	}
	logrus.Infof("Current epoch: %d", current.CurrentEpoch)

	epochs := r.validEpochs(sel.Resolve(current.CurrentEpoch), current.CurrentEpoch)
	if len(epochs) == 0 {
		return fmt.Errorf("no valid epochs to process")
	}
	logrus.Infof("Processing epochs: %v", epochs)

	// System-level metadata is best-effort; documents degrade gracefully
	// without it.
	chain, err := r.client.ChainInfo(ctx)
	if err != nil {
		return err
	}
	version, err := r.client.VersionInfo(ctx)
	if err != nil {
		return err
	}
	indexed, err := r.client.IndexedEpoch(ctx)
	if err != nil {
		return err
	}

	builder := convert.NewBuilder(r.cfg.BaseURL, r.rates, chain, version, indexed)

	files := []string{"grants_system.json", "grant_pools.json", "projects.json"}

	logrus.Info("Generating grants system...")
	if err := r.timed("system", func() error {
		return r.out.WriteJSON("grants_system.json", builder.System(ctx))
	}); err != nil {
		return err
	}

	logrus.Info("Generating grant pools...")
	if err := r.timed("pools", func() error {
		doc, err := r.buildPools(ctx, builder, epochs)
		if err != nil {
			return err
		}
		return r.out.WriteJSON("grant_pools.json", doc)
	}); err != nil {
		return err
	}

	logrus.Info("Generating projects...")
	if err := r.timed("projects", func() error {
		doc, err := r.buildProjects(ctx, builder, epochs)
		if err != nil {
			return err
		}
		return r.out.WriteJSON("projects.json", doc)
	}); err != nil {
		return err
	}

	if err := r.generateApplications(ctx, builder, epochs); err != nil {
		return err
	}
	for _, e := range epochs {
		files = append(files, fmt.Sprintf("applications_epoch_%d.json", e))
	}

	summary := r.buildSummary(builder, epochs, current.CurrentEpoch, indexedOrUnavailable(indexed), files)
	if err := r.out.WriteJSON("generation_summary.json", summary); err != nil {
		return err
	}

	logrus.Infof("Successfully generated DAOIP-5 files in %s/", r.out.Dir())
	logrus.Infof("Processed %d epochs: %v", len(epochs), epochs)
	return nil
}

// validEpochs drops epoch numbers outside 1..current with a warning.
func (r *Runner) validEpochs(epochs []int, current int) []int {
	var valid, invalid []int
	for _, e := range epochs {
		if e < 1 || e > current {
			invalid = append(invalid, e)
			continue
		}
		valid = append(valid, e)
	}
	if len(invalid) > 0 {
		logrus.Warnf("Invalid epoch numbers (must be 1-%d): %v", current, invalid)
	}
	return valid
}

func (r *Runner) buildPools(ctx context.Context, builder *convert.Builder, epochs []int) (*convert.PoolsDocument, error) {
	pools := []convert.GrantPool{}
	for _, e := range epochs {
		logrus.Infof("Processing epoch %d", e)
		info, err := r.client.EpochInfo(ctx, e)
		if err != nil {
			return nil, err
		}
		status, err := r.client.EpochStatus(ctx, e)
		if err != nil {
			return nil, err
		}
		if info == nil || status == nil {
			logrus.Warnf("Could not fetch data for epoch %d", e)
			continue
		}
		pools = append(pools, builder.GrantPool(e, info, status))
	}
	return builder.Pools(ctx, epochs, pools), nil
}

func (r *Runner) buildProjects(ctx context.Context, builder *convert.Builder, epochs []int) (*convert.ProjectsDocument, error) {
	acc := convert.NewProjectAccumulator()
	for _, e := range epochs {
		logrus.Infof("Fetching projects for epoch %d", e)
		meta, err := r.client.ProjectsForEpoch(ctx, e)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			continue
		}
		details, err := r.client.ProjectDetails(ctx, []int{e})
		if err != nil {
			return nil, err
		}
		acc.Add(builder.ChainID(), e, meta, details)
	}
	return builder.Projects(ctx, epochs, acc), nil
}

// generateApplications processes epochs on a bounded worker pool. Worker
// errors other than cancellation stay contained in their epoch.
func (r *Runner) generateApplications(ctx context.Context, builder *convert.Builder, epochs []int) error {
	tracer := otel.Tracer()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, e := range epochs {
		e := e
		g.Go(func() error {
			epochCtx, span := tracer.Start(ctx, "generate_applications")
			span.SetAttributes(attribute.Int("epoch", e))
			defer span.End()

			logrus.Infof("Generating applications for epoch %d...", e)

			allocations, err := r.client.AllocationsForEpoch(epochCtx, e)
			if err != nil {
				return err
			}
			rewards, err := r.client.ProjectRewards(epochCtx, e)
			if err != nil {
				return err
			}
			merkle, err := r.client.MerkleTree(epochCtx, e)
			if err != nil {
				return err
			}

			start := time.Now()
			doc := builder.Applications(epochCtx, e, allocations, rewards, merkle)
			metrics.GenerationDuration.WithLabelValues("applications").Observe(time.Since(start).Seconds())
			metrics.EpochsProcessed.WithLabelValues(string(doc.GrantPools[0].EpochStatus)).Inc()

			name := fmt.Sprintf("applications_epoch_%d.json", e)
			if err := r.out.WriteJSON(name, doc); err != nil {
				// Containment: an unwritable epoch file is logged and
				// annotated, not allowed to sink the remaining epochs.
				otel.RecordError(epochCtx, err)
				logrus.Errorf("Could not write applications for epoch %d: %v", e, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) timed(document string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.GenerationDuration.WithLabelValues(document).Observe(time.Since(start).Seconds())
	return err
}
