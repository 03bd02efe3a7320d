package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/s0up4200/seedkeeper/cleanup"
	"github.com/s0up4200/seedkeeper/config"
	"github.com/s0up4200/seedkeeper/qbittorrent"
	"github.com/s0up4200/seedkeeper/sharelimits"
)

// applyShareLimits resolves every torrent to its share limit group and
// applies the decision for it. Deletions are planned, not executed.
func (e *Engine) applyShareLimits(ctx context.Context, p *pass) {
	log := p.log.With().Str("command", "share_limits").Logger()

	groups, warnings := sharelimits.BuildGroups(e.cfg.ShareLimits, e.compiler)
	for _, w := range warnings {
		log.Warn().Err(w).Msg("Share limit configuration problem")
		p.summary.addError(w)
	}

	var torrents []*qbittorrent.TorrentInfo
	for _, t := range p.active() {
		if e.cfg.Settings.ShareLimitsFilterCompleted && !t.IsComplete() {
			continue
		}
		torrents = append(torrents, t)
	}

	assignment, errs := sharelimits.Assign(torrents, groups)
	for _, err := range errs {
		log.Warn().Err(err).Msg("Share limit filter failed, group skipped")
		p.summary.addError(err)
	}

	evaluator := sharelimits.NewEvaluator(sharelimits.TagNames{
		ShareLimits:    e.cfg.Settings.ShareLimitsTag,
		MinSeedingTime: e.cfg.Settings.MinSeedingTimeTag,
		MinNumSeeds:    e.cfg.Settings.MinNumSeedsTag,
		LastActive:     e.cfg.Settings.LastActiveTag,
	}, groups)

	var mu sync.Mutex
	e.forEach(ctx, torrents, func(ctx context.Context, t *qbittorrent.TorrentInfo) {
		g := assignment.Group(t.Hash)
		in := sharelimits.Inputs{Now: p.now}
		if g != nil {
			in.GroupSize = assignment.Size(g.Name)
		}

		d := evaluator.Evaluate(t, g, in)
		p.summary.decision(d.Kind.String())

		tlog := log.With().Str("torrent", t.Name).Str("hash", t.Hash).Str("group", d.Group).Str("decision", d.Kind.String()).Logger()

		if d.Kind.IsDelete() {
			tlog.Info().Str("reason", d.Reason).Msg(dryRunMsg(p.dryRun, "Share limits reached, removing torrent"))
			mu.Lock()
			p.schedule(cleanup.Candidate{
				Torrent:        t,
				DeleteContents: d.Kind == sharelimits.DeleteWithContents,
				Source:         string(config.CommandShareLimits),
				Reason:         d.Reason,
			})
			mu.Unlock()
			return
		}
		if !d.HasMutations() {
			return
		}

		if err := e.applyDecision(ctx, p, t, d, tlog); err != nil {
			tlog.Error().Err(err).Msg("Failed to apply share limits")
			p.summary.addError(fmt.Errorf("share limits for %s: %w", t.Name, err))
			return
		}
		p.summary.add(&p.summary.UpdatedShareLimits, 1)
	})
}

// applyDecision issues the client calls a decision asks for and mirrors them
// on t. It stops at the first failing call.
func (e *Engine) applyDecision(ctx context.Context, p *pass, t *qbittorrent.TorrentInfo, d sharelimits.Decision, log zerolog.Logger) error {
	event := log.Info()
	if d.SetLimits {
		event = event.Float64("max_ratio", d.Limits.Ratio).Int64("max_seeding_minutes", d.Limits.SeedingMinutes)
	}
	if d.SetUpload {
		event = event.Int64("upload_limit", d.Limits.UploadLimit)
	}
	event.
		Strs("add_tags", d.AddTags).
		Strs("remove_tags", d.RemoveTags).
		Bool("resume", d.Resume).
		Str("reason", d.Reason).
		Msg(dryRunMsg(p.dryRun, "Updating share limits"))

	if err := e.removeTags(ctx, p, t, d.RemoveTags); err != nil {
		return fmt.Errorf("remove tags: %w", err)
	}
	if err := e.addTags(ctx, p, t, d.AddTags); err != nil {
		return fmt.Errorf("add tags: %w", err)
	}

	hashes := []string{t.Hash}
	if d.SetLimits {
		if !p.dryRun {
			if err := e.client.SetShareLimits(ctx, hashes, d.Limits.Ratio, d.Limits.SeedingMinutes, d.Limits.InactiveMinutes); err != nil {
				return fmt.Errorf("set share limits: %w", err)
			}
		}
		t.RatioLimit = d.Limits.Ratio
		t.SeedingTimeLimit = d.Limits.SeedingMinutes
		t.InactiveSeedingTimeLimit = d.Limits.InactiveMinutes
	}
	if d.SetUpload {
		if !p.dryRun {
			if err := e.client.SetUploadLimit(ctx, hashes, d.Limits.UploadLimit); err != nil {
				return fmt.Errorf("set upload limit: %w", err)
			}
		}
		t.UpLimit = d.Limits.UploadLimit
	}
	if d.Resume {
		if !p.dryRun {
			if err := e.client.Resume(ctx, hashes); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
		}
		p.summary.add(&p.summary.Resumed, 1)
	}
	return nil
}
