// Package resolver turns a locator chain into a live element by trying each
// descriptor in priority order until one of them matches.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/locator"
)

// DefaultProbeTimeout bounds each per-descriptor visibility attempt.
const DefaultProbeTimeout = 2 * time.Second

// Page is the part of a browser session the resolver needs.
type Page interface {
	// WaitVisible blocks until q matches a visible element or ctx is done.
	WaitVisible(ctx context.Context, q locator.Query) (*cdp.Node, error)
	// Count reports how many elements currently match q, without waiting.
	Count(ctx context.Context, q locator.Query) (int, error)
}

// Element is a resolved handle. Node is only valid for the DOM snapshot it
// was read from and must not be kept across navigation.
type Element struct {
	Chain string
	Query locator.Query
	Node  *cdp.Node
	// Index is the chain position that matched; anything above zero means
	// the preferred descriptor has drifted.
	Index int
}

func (e *Element) String() string {
	return e.Query.String()
}

// Attempt records the outcome of probing a single descriptor.
type Attempt struct {
	Descriptor locator.Descriptor
	Query      locator.Query
	Node       *cdp.Node
	Err        error
}

// OK reports whether the attempt produced a live element.
func (a Attempt) OK() bool { return a.Err == nil && a.Node != nil }

// Resolver walks locator chains against a page.
type Resolver struct {
	probe  time.Duration
	logger *zap.Logger
}

// New creates a resolver. A non-positive probe falls back to DefaultProbeTimeout.
func New(probe time.Duration, logger *zap.Logger) *Resolver {
	if probe <= 0 {
		probe = DefaultProbeTimeout
	}
	return &Resolver{probe: probe, logger: logger.Named("resolver")}
}

// Resolve returns the first descriptor in chain whose query becomes visible
// within the probe timeout. Later descriptors are never tried once one
// succeeds. When every descriptor fails the result is an *ElementNotFoundError
// listing them all, in chain order. A *locator.FormatError is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, page Page, chain locator.Chain, subs ...string) (*Element, error) {
	descriptors := chain.Descriptors()
	attempts := make([]Attempt, 0, len(descriptors))

	for i, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolution of %s aborted: %w", chain.Name(), err)
		}

		a := r.try(ctx, page, d, subs)
		if a.OK() {
			if i > 0 {
				r.logger.Info("Resolved through fallback descriptor.",
					zap.String("chain", chain.Name()),
					zap.String("matched", d.Raw),
					zap.Int("index", i))
			}
			return &Element{Chain: chain.Name(), Query: a.Query, Node: a.Node, Index: i}, nil
		}

		var fe *locator.FormatError
		if errors.As(a.Err, &fe) {
			return nil, a.Err
		}
		// An attempt cut short by the caller says nothing about the element.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolution of %s aborted: %w", chain.Name(), err)
		}

		r.logger.Debug("Descriptor did not resolve.",
			zap.String("chain", chain.Name()),
			zap.String("descriptor", d.Raw),
			zap.Error(a.Err))
		attempts = append(attempts, a)
	}

	return nil, &ElementNotFoundError{Chain: chain.Name(), Attempts: attempts}
}

func (r *Resolver) try(ctx context.Context, page Page, d locator.Descriptor, subs []string) Attempt {
	a := Attempt{Descriptor: d}
	q, err := d.Query(subs...)
	if err != nil {
		a.Err = err
		return a
	}
	a.Query = q

	probeCtx, cancel := context.WithTimeout(ctx, r.probe)
	defer cancel()

	node, err := page.WaitVisible(probeCtx, q)
	switch {
	case err != nil:
		a.Err = err
	case node == nil:
		a.Err = errors.New("page returned no node")
	default:
		a.Node = node
	}
	return a
}

// Best is the outcome of BestQuery.
type Best struct {
	Query locator.Query
	Index int
	// Found is false when no descriptor matched and Query is the chain's
	// first descriptor returned as a last resort.
	Found bool
}

// BestQuery performs the same priority walk as Resolve but checks presence in
// the current DOM without waiting, and returns the native query rather than
// an element. If nothing matches it returns the first descriptor's query with
// Found set to false so the caller can still build an explicit wait around it.
func (r *Resolver) BestQuery(ctx context.Context, page Page, chain locator.Chain, subs ...string) (Best, error) {
	descriptors := chain.Descriptors()
	if len(descriptors) == 0 {
		return Best{}, fmt.Errorf("chain %q has no descriptors", chain.Name())
	}

	var first locator.Query
	for i, d := range descriptors {
		q, err := d.Query(subs...)
		if err != nil {
			return Best{}, err
		}
		if i == 0 {
			first = q
		}

		n, err := page.Count(ctx, q)
		if err != nil {
			r.logger.Debug("Presence check failed.", zap.String("descriptor", d.Raw), zap.Error(err))
			continue
		}
		if n > 0 {
			return Best{Query: q, Index: i, Found: true}, nil
		}
	}

	r.logger.Warn("No descriptor is present; falling back to the preferred one.",
		zap.String("chain", chain.Name()),
		zap.String("fallback", first.String()))
	return Best{Query: first}, nil
}
