package main

import (
	"testing"
)

func newTestQueue(t *testing.T, jobs []Job) *Queue {
	t.Helper()

	if err := InitLogFile(t.TempDir()); err != nil {
		t.Fatalf("InitLogFile: %v", err)
	}

	hub, err := NewHub()
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}

	queue, err := NewQueue(jobs, hub)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	return &queue
}

func TestQueueFIFO(t *testing.T) {
	queue := newTestQueue(t, nil)

	queue.Enqueue(Job{ID: 1, Path: "a"})
	queue.Enqueue(Job{ID: 2, Path: "b"})

	job, ok := queue.Peek()
	if !ok || job.ID != 1 {
		t.Fatalf("Peek = %+v, %v", job, ok)
	}

	job, ok = queue.Dequeue()
	if !ok || job.ID != 1 {
		t.Fatalf("first Dequeue = %+v, %v", job, ok)
	}

	job, ok = queue.Dequeue()
	if !ok || job.ID != 2 {
		t.Fatalf("second Dequeue = %+v, %v", job, ok)
	}

	if _, ok := queue.Dequeue(); ok {
		t.Fatal("Dequeue on empty queue returned a job")
	}
}

func TestQueueRemoveByID(t *testing.T) {
	queue := newTestQueue(t, []Job{{ID: 1}, {ID: 2}, {ID: 3}})

	job, ok := queue.RemoveByID(2)
	if !ok || job.ID != 2 {
		t.Fatalf("RemoveByID = %+v, %v", job, ok)
	}

	if _, ok := queue.RemoveByID(2); ok {
		t.Fatal("removed the same job twice")
	}

	jobs := queue.GetJobs()
	if len(jobs) != 2 || jobs[0].ID != 1 || jobs[1].ID != 3 {
		t.Fatalf("remaining jobs = %+v", jobs)
	}
}

func TestQueueFindByID(t *testing.T) {
	queue := newTestQueue(t, []Job{{ID: 5}, {ID: 7}})

	job, index := queue.FindByID(7)
	if index != 1 || job.ID != 7 {
		t.Fatalf("FindByID = %+v at %d", job, index)
	}

	if _, index := queue.FindByID(42); index != -1 {
		t.Fatalf("FindByID for missing job = %d, want -1", index)
	}
}
