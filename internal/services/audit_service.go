package services

import (
	"log"
	"sync"

	"github.com/zmnix/keygate/internal/database"
	"github.com/zmnix/keygate/internal/models"
)

// AuditService persists one RequestLog row per verification attempt,
// decoupled from the request path by a bounded queue. Emission is strictly
// best effort: a full queue or a failing store loses records with a logged
// warning and never touches the response already computed for the caller.
type AuditService struct {
	queue    chan models.RequestLog
	stopChan chan struct{}
	wg       sync.WaitGroup
	dropped  uint64
	mu       sync.Mutex
}

// NewAuditService creates a new audit sink with the given queue depth.
func NewAuditService(buffer int) *AuditService {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AuditService{
		queue:    make(chan models.RequestLog, buffer),
		stopChan: make(chan struct{}),
	}
}

// Start begins the background writer
func (s *AuditService) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop drains the queue and stops the writer
func (s *AuditService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Pending returns the number of records waiting for the writer.
func (s *AuditService) Pending() int {
	return len(s.queue)
}

// Record enqueues a verification attempt without blocking. When the queue
// is full the record is dropped, not the request.
func (s *AuditService) Record(entry models.RequestLog) {
	select {
	case s.queue <- entry:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		log.Printf("Audit queue full, dropped request log (%d dropped total)", dropped)
	}
}

func (s *AuditService) run() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.queue:
			s.write(entry)
		case <-s.stopChan:
			// Drain whatever is still queued before shutting down.
			for {
				select {
				case entry := <-s.queue:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *AuditService) write(entry models.RequestLog) {
	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("Failed to persist request log: %v", err)
	}
}
