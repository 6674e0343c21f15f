package port

import (
	"github.com/vertextoedge/download-controller/internal/domain/repository"
)

// HistoryRepository is an alias to the domain repository interface
type HistoryRepository = repository.TransferHistoryRepository
