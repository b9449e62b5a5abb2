// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package publish

import (
	"context"
	"time"

	"go.uber.org/zap"
	"pault.ag/go/debian/version"

	"soyuz.io/soyuz/pkg/archive"
)

// Dominate is phase B: within each (kind, name, component, suite) group
// of published records, every record but the one with the highest Debian
// version becomes superseded, scheduled for reaping after the stay of
// execution. Suites that lose a record are marked dirty.
func (publisher *Publisher) Dominate(ctx context.Context, now time.Time) (dominated int, err error) {
	defer mon.Task()(&ctx)(&err)

	published, err := publisher.pubs.Published(ctx)
	if err != nil {
		return 0, err
	}

	type key struct {
		kind      archive.Kind
		name      string
		component archive.Component
		suite     archive.Suite
	}
	groups := map[key][]*archive.Publication{}
	for _, pub := range published {
		k := key{pub.Kind, pub.Name, pub.Component, pub.Suite}
		groups[k] = append(groups[k], pub)
	}

	var superseded []int64
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		winner := group[0]
		winnerVersion, err := version.Parse(winner.Version)
		if err != nil {
			publisher.log.Warn("unparseable version wins by default",
				zap.String("name", winner.Name),
				zap.String("version", winner.Version),
				zap.Error(err))
		}
		for _, pub := range group[1:] {
			candidate, err := version.Parse(pub.Version)
			if err != nil {
				publisher.log.Warn("skipping unparseable version",
					zap.String("name", pub.Name),
					zap.String("version", pub.Version),
					zap.Error(err))
				continue
			}
			if version.Compare(candidate, winnerVersion) > 0 {
				winner, winnerVersion = pub, candidate
			}
		}

		for _, pub := range group {
			if pub == winner {
				continue
			}
			superseded = append(superseded, pub.ID)
			publisher.markDirty(pub.Suite)
			publisher.log.Debug("dominated",
				zap.String("name", pub.Name),
				zap.String("loser", pub.Version),
				zap.String("winner", winner.Version))
		}
	}

	if len(superseded) > 0 {
		err := publisher.pubs.MarkSuperseded(ctx, superseded, now, now.Add(publisher.config.Stay()))
		if err != nil {
			return 0, err
		}
	}
	return len(superseded), nil
}
