package ports

import "github.com/pco-network/pco/internal/core/domain"

type RepoManager interface {
	Events() domain.EventRepository
	Assets() domain.AssetRepository
	Remittances() domain.RemittanceRepository
	Close()
}
