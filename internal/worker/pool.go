package worker

import (
	"context"
	"log"
	"time"

	"rulegen-service/internal/service"
)

type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
}

func NewPool(queue service.Queue, processor *Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
	}
}

func (p *Pool) Run(ctx context.Context) {
	log.Printf("worker pool started: workers=%d", p.workers)

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for jobID := range jobCh {
				if err := p.processor.Process(ctx, jobID); err != nil {
					log.Printf("[worker-%d] process job %s error: %v", n, jobID, err)
				}

				// Ack regardless of outcome: the job row already carries its
				// terminal status. If Process crashed before persisting, the
				// reaper returns the id to the queue.
				if ackErr := p.queue.Ack(ctx, jobID); ackErr != nil {
					log.Printf("[worker-%d] ack job %s error: %v", n, jobID, ackErr)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			log.Println("worker pool stopped")
			return
		default:
			jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout / redis.Nil / ctx cancel - not fatal
				continue
			}
			select {
			case jobCh <- jobID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}
