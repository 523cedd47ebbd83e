package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"hydrocalc/internal/models"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Service handles scheduled job management and execution
type Service struct {
	db       *gorm.DB
	ctx      context.Context
	cron     *cron.Cron
	jobs     map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu   sync.RWMutex
	handlers map[string]JobFunc
}

// NewService creates a new scheduler service. Jobs run with ctx.
func NewService(ctx context.Context, db *gorm.DB) *Service {
	return &Service{
		db:       db,
		ctx:      ctx,
		cron:     cron.New(cron.WithSeconds()),
		jobs:     make(map[string]cron.EntryID),
		handlers: make(map[string]JobFunc),
	}
}

// RegisterHandler binds a job type to the function executing it. Jobs of an
// unregistered type fail when they fire.
func (s *Service) RegisterHandler(jobType string, fn JobFunc) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.handlers[jobType] = fn
}

// Start initializes the scheduler and loads enabled jobs from database
func (s *Service) Start() error {
	log.Println("[INFO] Starting scheduler...")

	if err := s.db.AutoMigrate(&ScheduledJob{}); err != nil {
		return fmt.Errorf("failed to migrate scheduled_jobs table: %w", err)
	}

	s.cron.Start()

	var jobs []ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for i := range jobs {
		job := jobs[i]
		if err := s.scheduleJob(&job); err != nil {
			log.Printf("[WARN] Failed to schedule job %s (%s): %v", job.Name, job.ID, err)
		} else {
			log.Printf("[INFO] Scheduled job: %s (%s) with cron: %s", job.Name, job.ID, job.Cron)
		}
	}

	log.Printf("[INFO] Scheduler started with %d enabled jobs", len(jobs))
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		log.Println("[INFO] Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i := range jobs {
		responses[i] = toJobListResponse(&jobs[i])
	}
	return responses, nil
}

// UpsertJob creates or updates a scheduled job by name and (re)schedules it
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.JobType == "" || req.Cron == "" {
		return "", fmt.Errorf("name, job_type, and cron are required")
	}

	s.jobsMu.RLock()
	_, known := s.handlers[req.JobType]
	s.jobsMu.RUnlock()
	if !known {
		return "", fmt.Errorf("unknown job type: %s", req.JobType)
	}

	normalizedCron, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	var job ScheduledJob
	err = s.db.Where("name = ?", req.Name).First(&job).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return "", fmt.Errorf("failed to query job: %w", err)
	}
	if isNew {
		job = ScheduledJob{ID: uuid.New().String(), Name: req.Name}
	}

	job.JobType = req.JobType
	job.Cron = normalizedCron
	job.Enabled = req.Enabled

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", err
	}
	job.Payload = payload

	schedule, err := cronParser.Parse(job.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(time.Now())
	job.NextRunAt = &nextRun

	if isNew {
		err = s.db.Create(&job).Error
	} else {
		err = s.db.Save(&job).Error
	}
	if err != nil {
		return "", fmt.Errorf("failed to save job %s: %w", job.Name, err)
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}
	return job.ID, nil
}

// DeleteJob removes a scheduled job by id or by name
func (s *Service) DeleteJob(idOrName string) error {
	var job ScheduledJob
	if err := s.db.Where("id = ? OR name = ?", idOrName, idOrName).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job %s: %w", idOrName, models.ErrNotFound)
		}
		return fmt.Errorf("failed to query job: %w", err)
	}

	s.unschedule(job.ID)

	if err := s.db.Delete(&ScheduledJob{}, "id = ?", job.ID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	log.Printf("[INFO] Deleted scheduled job %s (%s)", job.Name, job.ID)
	return nil
}

// Scheduled reports whether jobID currently has a cron entry
func (s *Service) Scheduled(jobID string) bool {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	_, ok := s.jobs[jobID]
	return ok
}

func (s *Service) unschedule(jobID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
}

// scheduleJob adds a job to the cron scheduler, replacing its previous entry
func (s *Service) scheduleJob(job *ScheduledJob) error {
	s.unschedule(job.ID)
	if !job.Enabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.executeJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[jobID] = entryID
	s.jobsMu.Unlock()
	return nil
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unschedule(jobID)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	return s.scheduleJob(&job)
}

// executeJob runs a scheduled job and records its run times
func (s *Service) executeJob(jobID string) {
	var job ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		log.Printf("[ERROR] Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	job.LastRunAt = &now
	if schedule, err := cronParser.Parse(job.Cron); err != nil {
		log.Printf("[WARN] Failed to parse cron for next run: %v", err)
	} else {
		nextRun := schedule.Next(now)
		job.NextRunAt = &nextRun
	}
	if err := s.db.Save(&job).Error; err != nil {
		log.Printf("[WARN] Failed to update job run times: %v", err)
	}

	var payload map[string]interface{}
	if job.Payload != "" {
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			log.Printf("[ERROR] Failed to parse payload of job %s: %v", job.Name, err)
			return
		}
	}

	s.jobsMu.RLock()
	fn, ok := s.handlers[job.JobType]
	s.jobsMu.RUnlock()
	if !ok {
		log.Printf("[WARN] Unknown job type: %s", job.JobType)
		return
	}

	if err := fn(s.ctx, payload); err != nil {
		log.Printf("[ERROR] Scheduled job %s failed: %v", job.Name, err)
		return
	}
	log.Printf("[DEBUG] Completed scheduled job: %s", job.Name)
}

func encodePayload(payload interface{}) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
		return string(data), nil
	}
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		if _, err := cronParser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func toJobListResponse(job *ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		JobType:   job.JobType,
		Cron:      job.Cron,
		Enabled:   job.Enabled,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}
	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}
	return resp
}
