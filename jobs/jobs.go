// Package jobs splits the project registry into active and inactive projects
// as the job board shows them.
package jobs

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"workhard-dashboard/registry"
)

// DefaultConcurrency bounds the approvedProjects lookups in flight.
const DefaultConcurrency = 8

// Board is the job board split. Ids are ascending and unique.
type Board struct {
	Total    int64   `json:"total"`
	Active   []int64 `json:"active"`
	Inactive []int64 `json:"inactive"`
}

// Project is one entry of the board with its NFT details.
type Project struct {
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`
	URI      string `json:"uri"`
	Approved bool   `json:"approved"`
}

// Load reads the project count and fans out one approval lookup per project.
// Any failed lookup fails the whole board; a partial split would misplace
// projects between the two lists.
func Load(ctx context.Context, project registry.Project, board registry.JobBoard, concurrency int) (Board, error) {
	total, err := project.TotalSupply(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("project count: %w", err)
	}
	if !total.IsInt64() {
		return Board{}, fmt.Errorf("project count out of range: %s", total)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	n := total.Int64()
	var (
		mu       sync.Mutex
		active   = make(map[int64]struct{})
		inactive = make(map[int64]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for id := int64(0); id < n; id++ {
		g.Go(func() error {
			approved, err := board.Approved(gctx, big.NewInt(id))
			if err != nil {
				return fmt.Errorf("project %d: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if approved {
				active[id] = struct{}{}
			} else {
				inactive[id] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Board{}, err
	}
	return Board{Total: n, Active: sorted(active), Inactive: sorted(inactive)}, nil
}

// Describe reads a project's owner and metadata URI.
func Describe(ctx context.Context, project registry.Project, board registry.JobBoard, id int64) (Project, error) {
	projID := big.NewInt(id)
	p := Project{ID: id}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		owner, err := project.OwnerOf(gctx, projID)
		if err != nil {
			return err
		}
		p.Owner = owner.Hex()
		return nil
	})
	g.Go(func() error {
		uri, err := project.TokenURI(gctx, projID)
		if err != nil {
			return err
		}
		p.URI = uri
		return nil
	})
	g.Go(func() error {
		approved, err := board.Approved(gctx, projID)
		if err != nil {
			return err
		}
		p.Approved = approved
		return nil
	})
	if err := g.Wait(); err != nil {
		return Project{}, fmt.Errorf("project %d: %w", id, err)
	}
	return p, nil
}

func sorted(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
