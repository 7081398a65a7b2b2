package service

import (
	"context"
	"fmt"
	"log/slog"
)

// SampleVideo is one seed entry.
type SampleVideo struct {
	URL  string
	Tags string
	Memo string
}

// DefaultSamples are created on first start when seeding is enabled.
var DefaultSamples = []SampleVideo{
	{URL: "https://youtu.be/aESY2UfxbNg?si=wZZM2SieVYv482yh", Tags: "music, rickroll", Memo: "Never gonna give you up"},
	{URL: "https://youtu.be/MAz_oROjyEM?si=7TZnx96AW7EGRhBc", Tags: "programming, python", Memo: "Python tutorial for beginners"},
	{URL: "https://youtu.be/6trwaTXyBkI?si=OjMQ7gJ9gIRRzvRb", Tags: "travel, japan", Memo: "Exploring Tokyo"},
}

// Counter reports how many records exist.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Seeder fills an empty catalog with sample records through the normal
// create path.
type Seeder struct {
	counter Counter
	videos  *VideoService
	samples []SampleVideo
	logger  *slog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(counter Counter, videos *VideoService, samples []SampleVideo, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{counter: counter, videos: videos, samples: samples, logger: logger}
}

// Seed creates the samples if the catalog is empty and returns how many were
// stored. An entry whose lookup fails is skipped.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	count, err := s.counter.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	if count > 0 {
		s.logger.Debug("catalog not empty, skipping seed", "videos", count)
		return 0, nil
	}

	created := 0
	for _, sample := range s.samples {
		tags, memo := sample.Tags, sample.Memo
		_, err := s.videos.Create(ctx, VideoInput{
			URL:  sample.URL,
			Tags: &tags,
			Memo: &memo,
		})
		if err != nil {
			s.logger.Warn("skipping seed video", "url", sample.URL, "error", err)
			continue
		}
		created++
	}

	s.logger.Info("seeded sample videos", "created", created, "total", len(s.samples))
	return created, nil
}
