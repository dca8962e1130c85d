package main

import "deflickarr/deflick"

type WsBaseMessage struct {
	Type string `json:"type"`
}

type WsWorkerProgress struct {
	WsBaseMessage
	WorkerID string  `json:"workerId"`
	JobID    int64   `json:"jobId"`
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
}

type WsQueueUpdate struct {
	WsBaseMessage
	Jobs []Job `json:"jobs"`
}

type WsBatchUpdate struct {
	WsBaseMessage
	WorkerID string         `json:"workerId"`
	JobID    int64          `json:"jobId"`
	Status   deflick.Status `json:"status"`
}
