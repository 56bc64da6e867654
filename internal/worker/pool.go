package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Priya8975/keyword-alerts/internal/metrics"
)

// AnnouncementSender delivers one admin announcement.
type AnnouncementSender interface {
	SendAnnouncement(ctx context.Context, address, text string) error
}

// BroadcastReport counts the outcome of one broadcast.
type BroadcastReport struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type broadcastJob struct {
	address string
	text    string
}

// Pool runs a fixed number of goroutines that send queued announcements.
type Pool struct {
	numWorkers int
	jobs       chan broadcastJob
	sender     AnnouncementSender
	logger     *slog.Logger
	wg         sync.WaitGroup
	sent       atomic.Int64
	failed     atomic.Int64
	metrics    *metrics.Metrics
}

func NewPool(numWorkers int, sender AnnouncementSender, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan broadcastJob, numWorkers*2),
		sender:     sender,
		logger:     logger,
		metrics:    m,
	}
}

// Start launches the workers. They drain the queue until Stop closes it.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit queues one announcement, blocking while the queue is full.
func (p *Pool) Submit(address, text string) {
	p.jobs <- broadcastJob{address: address, text: text}
}

// Stop closes the queue and waits for the workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		if ctx.Err() != nil {
			p.record("failed")
			continue
		}
		if err := p.sender.SendAnnouncement(ctx, job.address, job.text); err != nil {
			p.logger.Error("failed to send broadcast", "address", job.address, "error", err)
			p.record("failed")
			continue
		}
		p.record("success")
	}
}

func (p *Pool) record(result string) {
	if result == "success" {
		p.sent.Add(1)
	} else {
		p.failed.Add(1)
	}
	if p.metrics != nil {
		p.metrics.BroadcastsSentTotal.WithLabelValues(result).Inc()
	}
}

// Broadcast sends text to every address through a pool of numWorkers and
// waits for all sends to finish.
func Broadcast(ctx context.Context, sender AnnouncementSender, addresses []string, text string, numWorkers int, logger *slog.Logger, m *metrics.Metrics) BroadcastReport {
	p := NewPool(numWorkers, sender, logger, m)
	p.Start(ctx)
	for _, addr := range addresses {
		p.Submit(addr, text)
	}
	p.Stop()

	report := BroadcastReport{
		Total:  len(addresses),
		Sent:   int(p.sent.Load()),
		Failed: int(p.failed.Load()),
	}
	logger.Info("broadcast finished", "total", report.Total, "sent", report.Sent, "failed", report.Failed)
	return report
}
