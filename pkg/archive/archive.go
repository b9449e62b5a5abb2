// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package archive defines the core types of the archive publisher:
// components, suites, publication records and the store interfaces that
// persistence layers implement.
package archive

import (
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default archive errs class.
var Error = errs.Class("archive")

// Component is an archive subdivision, e.g. "main" or "universe".
type Component string

// Order is a total priority order over components. Components earlier in
// the list are preferred: they win the canonical copy of a shared pool
// file.
type Order []Component

// Rank returns the priority rank of component, lower is more preferred.
// Unknown components rank after every known one.
func (order Order) Rank(component Component) int {
	for i, c := range order {
		if c == component {
			return i
		}
	}
	return len(order)
}

// Prefers reports whether a outranks b.
func (order Order) Prefers(a, b Component) bool {
	return order.Rank(a) < order.Rank(b)
}

// Best returns the most preferred component of the given ones.
func (order Order) Best(components []Component) Component {
	if len(components) == 0 {
		return ""
	}
	best := components[0]
	for _, c := range components[1:] {
		if order.Prefers(c, best) {
			best = c
		}
	}
	return best
}

// Pocket distinguishes the sub-archives of a distro series.
type Pocket string

// Pockets, in publication order.
const (
	PocketRelease   Pocket = "release"
	PocketSecurity  Pocket = "security"
	PocketUpdates   Pocket = "updates"
	PocketProposed  Pocket = "proposed"
	PocketBackports Pocket = "backports"
)

// Suite is a (distro series, pocket) pair; the unit of index generation.
type Suite struct {
	Series string
	Pocket Pocket
}

// Name returns the on-disk suite name under dists/: the bare series name
// for the release pocket, series-pocket otherwise.
func (suite Suite) Name() string {
	if suite.Pocket == PocketRelease || suite.Pocket == "" {
		return suite.Series
	}
	return suite.Series + "-" + string(suite.Pocket)
}

// ParseSuite parses a suite name as written under dists/.
func ParseSuite(name string) (Suite, error) {
	if name == "" {
		return Suite{}, Error.New("empty suite name")
	}
	for _, pocket := range []Pocket{PocketSecurity, PocketUpdates, PocketProposed, PocketBackports} {
		suffix := "-" + string(pocket)
		if strings.HasSuffix(name, suffix) {
			return Suite{Series: strings.TrimSuffix(name, suffix), Pocket: pocket}, nil
		}
	}
	return Suite{Series: name, Pocket: PocketRelease}, nil
}
