package service

import (
	"parcel/internal/model"
	"parcel/internal/store"
)

type StatsService struct {
	db      *store.DB
	uploads *UploadService
}

func NewStatsService(db *store.DB, uploads *UploadService) *StatsService {
	return &StatsService{
		db:      db,
		uploads: uploads,
	}
}

func (s *StatsService) GetCurrent() (*model.Stats, error) {
	historical, err := s.db.GetStats()
	if err != nil {
		return nil, err
	}
	counts, err := s.db.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &model.Stats{
		Active: model.ActiveStats{
			Uploads: counts[model.StatusUploading],
			Queued:  counts[model.StatusQueued],
		},
		Totals: model.TotalStats{
			TotalUploaded: historical.TotalUploaded,
			TasksFinished: historical.CompletedTasks,
			TasksFailed:   historical.FailedTasks,
		},
	}

	s.uploads.mu.Lock()
	for _, r := range s.uploads.running {
		stats.Active.Sent += r.tracker.Sent()
	}
	s.uploads.mu.Unlock()
	return stats, nil
}
