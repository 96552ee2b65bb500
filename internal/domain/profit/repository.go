package profit

import "context"

type Repository interface {
	GetPool(ctx context.Context, groupID uint64) (*Pool, error)
	SavePool(ctx context.Context, p *Pool) error

	CreateDistribution(ctx context.Context, d *Distribution) error
	ListDistributions(ctx context.Context, groupID uint64) ([]Distribution, error)

	CreateShareDetail(ctx context.Context, s *ShareDetail) error
	ListShareDetails(ctx context.Context, distributionID uint64) ([]ShareDetail, error)
}
