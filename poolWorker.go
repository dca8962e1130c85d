package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var retryLimit int = 5

type PoolWorker struct {
	ctx         context.Context
	queue       *Queue
	config      *Config
	hub         *Hub
	logger      *logrus.Entry
	waitGroup   *sync.WaitGroup
	workChannel chan Job
}

func NewPoolWorker(ctx context.Context, queue *Queue, config *Config,
	hub *Hub, waitGroup *sync.WaitGroup) (PoolWorker, error) {
	logger, err := CreateLogger("dispatcher")
	if err != nil {
		return PoolWorker{}, err
	}

	return PoolWorker{
		ctx:         ctx,
		queue:       queue,
		config:      config,
		hub:         hub,
		logger:      logger,
		waitGroup:   waitGroup,
		workChannel: make(chan Job, config.Workers),
	}, nil
}

func (p *PoolWorker) RunDispatcher() {
	for i := 0; i < p.config.Workers; i++ {
		worker, err := NewWorker(i, p)
		if err != nil {
			p.logger.Panic("Failed to create worker: ", err)
		}

		go worker.start()
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, ok := p.queue.Dequeue()
			if ok {
				p.workChannel <- job
			} else {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (p *PoolWorker) sendWorkerProgress(workerID int, jobID int64, step string, progress float64) {
	p.hub.BroadcastMessage(WsWorkerProgress{
		WsBaseMessage: WsBaseMessage{Type: "worker_progress"},
		WorkerID:      fmt.Sprintf("worker_%d", workerID),
		JobID:         jobID,
		Step:          step,
		Progress:      progress,
	})
}
