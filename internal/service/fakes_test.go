package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/db/models"
	"github.com/ad-tracker/video-catalog-go/internal/db/repository"
	"github.com/ad-tracker/video-catalog-go/internal/events"
	"github.com/ad-tracker/video-catalog-go/internal/service/youtube"
)

// memVideoRepo is an in-memory VideoRepository with the same conditional
// write semantics as the SQL implementation.
type memVideoRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Video
	err    error
	getErr error
}

func newMemVideoRepo() *memVideoRepo {
	return &memVideoRepo{nextID: 1, rows: map[int64]models.Video{}}
}

func notFound(op string) error { return db.WrapError(pgx.ErrNoRows, op) }

func (r *memVideoRepo) Create(_ context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	v.ID = r.nextID
	r.nextID++
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	r.rows[v.ID] = *v
	return nil
}

func (r *memVideoRepo) GetByID(_ context.Context, id int64) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	v, ok := r.rows[id]
	if !ok {
		return nil, notFound("get video")
	}
	return &v, nil
}

func (r *memVideoRepo) Search(_ context.Context, _ repository.VideoFilters) ([]*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Video, 0, len(r.rows))
	for _, v := range r.rows {
		v := v
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memVideoRepo) UpdateAnnotations(_ context.Context, id int64, tags, memo *string) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok {
		return nil, notFound("update video annotations")
	}
	v.Tags = tags
	v.Memo = memo
	v.UpdatedAt = time.Now()
	r.rows[id] = v
	return &v, nil
}

func (r *memVideoRepo) ReplaceSource(_ context.Context, v *models.Video, expectedURL string, expectedStatus models.VideoStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.rows[v.ID]
	if !ok || old.URL != expectedURL || old.Status != expectedStatus {
		return false, nil
	}
	v.CreatedAt = old.CreatedAt
	v.UpdatedAt = time.Now()
	r.rows[v.ID] = *v
	return true, nil
}

func (r *memVideoRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return notFound("delete video")
	}
	delete(r.rows, id)
	return nil
}

func (r *memVideoRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows), nil
}

func (r *memVideoRepo) ListTagStrings(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, v := range r.rows {
		if v.Tags != nil {
			out = append(out, *v.Tags)
		}
	}
	return out, nil
}

func (r *memVideoRepo) SetTranscript(_ context.Context, id int64, transcript string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok || v.Status != models.StatusCompleted || v.HasTranscript() {
		return false, nil
	}
	v.Transcript = &transcript
	r.rows[id] = v
	return true, nil
}

func (r *memVideoRepo) MarkProcessing(_ context.Context, id int64) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok {
		return nil, notFound("mark video processing")
	}
	v.Status = models.StatusProcessing
	v.Transcript = nil
	v.LastError = nil
	r.rows[id] = v
	return &v, nil
}

func (r *memVideoRepo) CompleteTranscription(_ context.Context, id int64, expectedURL, transcript string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok || v.URL != expectedURL {
		return false, nil
	}
	v.Transcript = &transcript
	v.Status = models.StatusCompleted
	v.LastError = nil
	r.rows[id] = v
	return true, nil
}

func (r *memVideoRepo) FailTranscription(_ context.Context, id int64, expectedURL, note string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok || v.URL != expectedURL {
		return false, nil
	}
	v.Status = models.StatusFailed
	v.LastError = &note
	r.rows[id] = v
	return true, nil
}

func (r *memVideoRepo) setURL(id int64, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.rows[id]
	v.URL = url
	r.rows[id] = v
}

func (r *memVideoRepo) setStatus(id int64, status models.VideoStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.rows[id]
	v.Status = status
	r.rows[id] = v
}

// interleavedVideoRepo runs a competing writer once, right after the next
// GetByID returns its snapshot.
type interleavedVideoRepo struct {
	*memVideoRepo
	once     sync.Once
	afterGet func()
}

func (r *interleavedVideoRepo) GetByID(ctx context.Context, id int64) (*models.Video, error) {
	v, err := r.memVideoRepo.GetByID(ctx, id)
	if r.afterGet != nil {
		r.once.Do(r.afterGet)
	}
	return v, err
}

// interleavedJobRepo runs a competing writer once, just before the next job
// is marked completed, and can fail a number of Create calls as if another
// job held the marker.
type interleavedJobRepo struct {
	*memJobRepo
	once           sync.Once
	beforeComplete func()
	phantomClaims  int
}

func (r *interleavedJobRepo) Create(ctx context.Context, job *models.TranscriptionJob) error {
	if r.phantomClaims > 0 {
		r.phantomClaims--
		return db.WrapError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_transcription_jobs_in_flight"}, "create transcription job")
	}
	return r.memJobRepo.Create(ctx, job)
}

func (r *interleavedJobRepo) MarkCompleted(ctx context.Context, id int64) error {
	if r.beforeComplete != nil {
		r.once.Do(r.beforeComplete)
	}
	return r.memJobRepo.MarkCompleted(ctx, id)
}

// memJobRepo enforces one unfinished job per video like the partial unique index.
type memJobRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*models.TranscriptionJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{nextID: 1, jobs: map[int64]*models.TranscriptionJob{}}
}

func active(j *models.TranscriptionJob) bool {
	return j.Status == models.JobStatusPending || j.Status == models.JobStatusProcessing
}

func (r *memJobRepo) Create(_ context.Context, job *models.TranscriptionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.VideoID == job.VideoID && active(j) {
			return db.WrapError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_transcription_jobs_in_flight"}, "create transcription job")
		}
	}
	job.ID = r.nextID
	r.nextID++
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = time.Now()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id int64) (*models.TranscriptionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, notFound("get transcription job")
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) GetActiveByVideoID(_ context.Context, videoID int64) (*models.TranscriptionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.VideoID == videoID && active(j) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, notFound("get active transcription job")
}

func (r *memJobRepo) SetTaskID(_ context.Context, id int64, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return notFound("set transcription job task id")
	}
	j.TaskID = &taskID
	return nil
}

func (r *memJobRepo) MarkProcessing(_ context.Context, id int64) (*models.TranscriptionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !active(j) {
		return nil, notFound("mark transcription job processing")
	}
	j.Status = models.JobStatusProcessing
	j.Attempts++
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) MarkCompleted(_ context.Context, id int64) error {
	return r.finish(id, models.JobStatusCompleted, nil)
}

func (r *memJobRepo) MarkFailed(_ context.Context, id int64, msg string) error {
	return r.finish(id, models.JobStatusFailed, &msg)
}

func (r *memJobRepo) finish(id int64, status models.JobStatus, msg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return notFound("finish transcription job")
	}
	j.Status = status
	j.ErrorMessage = msg
	return nil
}

func (r *memJobRepo) ListByVideoID(_ context.Context, videoID int64, _ int) ([]*models.TranscriptionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TranscriptionJob
	for _, j := range r.jobs {
		if j.VideoID == videoID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

type mockMetadata struct {
	mock.Mock
}

func (m *mockMetadata) FetchMetadata(ctx context.Context, videoID string) (*youtube.Metadata, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.Metadata), args.Error(1)
}

type mockCaptions struct {
	mock.Mock
}

func (m *mockCaptions) Fetch(ctx context.Context, videoID string) (string, error) {
	args := m.Called(ctx, videoID)
	return args.String(0), args.Error(1)
}

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Run(ctx context.Context, videoID, languageCode string) (string, error) {
	args := m.Called(ctx, videoID, languageCode)
	return args.String(0), args.Error(1)
}

// recordingScheduler keeps scheduled tasks for the test to run by hand.
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []TranscriptionTask
	err   error
}

func (s *recordingScheduler) ScheduleTranscription(_ context.Context, task TranscriptionTask) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.tasks = append(s.tasks, task)
	return fmt.Sprintf("task-%d", task.JobID), nil
}

func (s *recordingScheduler) last() TranscriptionTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[len(s.tasks)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.VideoEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.VideoEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
