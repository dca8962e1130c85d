package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"deflickarr/deflick"
)

type Worker struct {
	// TODO: for context, always maybe add
	// a time constrained context to make sure
	// nothing is undefinitely running and blocking
	id         int
	logger     *logrus.Entry
	poolWorker *PoolWorker
}

type ProcessJobOutput struct {
	err                    error
	noRetry                bool
	jobNotFound            bool
	outputFileAlreadyExist bool
}

func NewWorker(id int, poolWorker *PoolWorker) (*Worker, error) {
	logger, err := CreateLogger(fmt.Sprintf("worker_%d", id))
	if err != nil {
		return nil, err
	}

	return &Worker{
		id:         id,
		logger:     logger,
		poolWorker: poolWorker,
	}, nil
}

func (w *Worker) start() {
	for job := range w.poolWorker.workChannel {
		w.poolWorker.waitGroup.Add(1)
		err := w.doWork(&job)
		if w.poolWorker.ctx.Err() != nil {
			w.logger.Debug("Ctx error is: ", w.poolWorker.ctx.Err())
			if w.poolWorker.ctx.Err() == context.Canceled {
				w.logger.Debug("Ctx was canceled")

				// End function so call return
				w.poolWorker.waitGroup.Done()
				return
			}
		}

		if err != nil {
			// TODO: make a place where I can store warnings
			// So I can store warnings for each job
			// Because otherwise the issues from doWork (that doesn't retry)
			// Won't show anywhere
		}

		w.poolWorker.waitGroup.Done()
	}
}

func (w *Worker) doWork(job *Job) error {
	output, processJobOutput := w.processJob(job)
	if w.poolWorker.ctx.Err() != nil {
		// The context is cancelled, just return
		// it's handled in start. The checkpoint keeps the
		// progress for the next run.
		return nil
	}

	if processJobOutput.err != nil {
		w.handleProcessJobError(job, output, &processJobOutput)
		// Error was handled already
		return nil
	}

	if processJobOutput.jobNotFound {
		w.logger.Error("Video to process wasn't found: ", job.Path)
		notFoundErr := errors.New("source video not found")
		w.failJob(job, output, notFoundErr)
		return notFoundErr
	}

	err := sqlite.MarkJobAsDone(job)
	if err != nil {
		w.logger.Error("Failed to mark job as done: ", err)
		return err
	}

	if *w.poolWorker.config.DeleteInputFileWhenFinished && !processJobOutput.outputFileAlreadyExist {
		w.logger.Debug("Deleting input file")
		ok, err := IsSamePath(job.Path, job.OutputPath)
		if err != nil {
			w.logger.Error("Error while looking up same path: ", err)
			return err
		}

		if !ok {
			err = os.Remove(job.Path)
			if err != nil {
				w.logger.WithFields(StructFields(job)).Error("Failed to delete video: ", err)
			}

			w.logger.WithField("file", job.Path).Info("Deleted input file")
		} else {
			w.logger.WithFields(StructFields(job)).Warn("Detected same path with delete input file option, not deleting anything!")
		}
	}

	w.logger.Info("Finished processing video")
	return nil
}

func (w *Worker) handleProcessJobError(job *Job, output string, processJobOutput *ProcessJobOutput) {
	w.logger.WithFields(StructFields(job)).Error("Error processing video: ", processJobOutput.err)
	if output != "" {
		w.logger.Debug("Process output: ", output)
	}

	if processJobOutput.noRetry {
		// Bad settings or bad input, a retry would fail the same way
		_ = w.failJob(job, output, processJobOutput.err)
		return
	}

	retries, err := sqlite.GetJobRetries(job)
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to get retries: ", err)
		return
	}

	if retries >= retryLimit {
		_ = w.failJob(job, output, processJobOutput.err)
		return
	}

	retries++
	err = sqlite.UpdateJobRetries(job, retries)
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to update job retries: ", err)
		return
	}

	w.poolWorker.queue.Enqueue(*job)
	w.logger.WithFields(StructFields(job)).Info("Requeue job (back of the queue and retrying)")
}

func (w *Worker) failJob(job *Job, output string, failError error) error {
	w.logger.WithFields(StructFields(job)).Info("Job failed, removing it from queue")
	err := sqlite.FailJob(job, output, failError.Error())
	if err != nil {
		w.logger.WithFields(StructFields(job)).Error("Failed to fail the job: ", err)
		return err
	}

	return nil
}

// noRetryError reports whether the deflicker refused the job for a reason
// a retry cannot fix.
func noRetryError(err error) bool {
	var configErr *deflick.ConfigError
	var dataErr *deflick.DataError
	var resourceErr *deflick.ResourceError
	return errors.As(err, &configErr) || errors.As(err, &dataErr) || errors.As(err, &resourceErr)
}

func (w *Worker) processJob(job *Job) (string, ProcessJobOutput) {
	w.logger.WithFields(StructFields(job)).Info("Processing video")

	videoExist, err := PathExist(job.Path)
	if err != nil {
		return "", ProcessJobOutput{}
	}

	if !videoExist {
		return "", ProcessJobOutput{jobNotFound: true}
	}

	samePath, err := IsSamePath(job.Path, job.OutputPath)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	outputExist, err := PathExist(job.OutputPath)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	// A same-path job rewrites its input, the existing file is the source
	if samePath {
		outputExist = false
	}

	// TODO: I think deleting the output should be done
	// right before the other output is going to be created
	// and keep the old file around until the new one is written
	// so a failed job doesn't lose the previous output
	if outputExist && *w.poolWorker.config.DeleteOutputIfAlreadyExist {
		w.logger.Debug("Output already exist, deleting file")
		err = os.Remove(job.OutputPath)
		if err != nil {
			return "", ProcessJobOutput{err: err}
		}
	} else if outputExist {
		w.logger.Debug("Output already exist, skipping")
		return "", ProcessJobOutput{outputFileAlreadyExist: true}
	}

	// The job folder is keyed by job ID and survives restarts, so a
	// resumed run reuses the extracted frames and the checkpoint instead
	// of starting over.
	processFolderJob := path.Join(w.poolWorker.config.ProcessFolder, fmt.Sprintf("job_%d", job.ID))
	w.logger.Debug("Creating job folder if doesn't exist")
	err = os.MkdirAll(processFolderJob, os.ModePerm)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	w.logger.Info("Getting video frame count and resolution")
	videoInfo, output, err := GetVideoInfo(w.poolWorker.ctx, job.Path)
	if err != nil {
		return output, ProcessJobOutput{err: err}
	}

	w.logger.Info("resolution: ", videoInfo.Width, "x", videoInfo.Height)
	w.logger.Info("fps: ", videoInfo.FrameRate)
	w.logger.Info("framecount: ", videoInfo.FrameCount)

	w.logger.Info("Extracting audio from the video")
	audioPath := path.Join(processFolderJob, "audio.m4a")
	output, err = ExtractAudio(w.poolWorker.ctx, job.Path, audioPath)
	if err != nil {
		// Videos without an audio stream are still fine to deflicker
		w.logger.Warn("No audio extracted: ", err)
		audioPath = ""
	}

	framesFolder := path.Join(processFolderJob, "frames")
	err = os.MkdirAll(framesFolder, os.ModePerm)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	extracted, err := countFrames(framesFolder)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	if int64(extracted) == videoInfo.FrameCount {
		w.logger.Info("Frames already extracted, reusing them")
	} else {
		w.logger.Info("Extracting video frames")
		progressChan := make(chan float64)
		go w.forwardProgress(job.ID, "extract_frames", progressChan)
		output, err = ExtractFrames(w.poolWorker.ctx, w.poolWorker.config.FFmpegOptions, job.Path, framesFolder, progressChan)
		if err != nil {
			return output, ProcessJobOutput{err: err}
		}
	}

	w.logger.Debug("Creating deflickered frames folder")
	deflickeredFolder := path.Join(processFolderJob, "deflickered_frames")
	err = os.MkdirAll(deflickeredFolder, os.ModePerm)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	w.logger.Info("Deflickering video")
	err = w.runDeflicker(job, videoInfo, framesFolder, deflickeredFolder)
	if err != nil {
		return "", ProcessJobOutput{err: err, noRetry: noRetryError(err)}
	}

	// make sure the folder exist
	baseOutputPath := path.Dir(job.OutputPath)
	w.logger.WithField("baseOutputPath", baseOutputPath).
		Debug("Creating output folder if it doesn't exist")
	if _, err := os.Stat(baseOutputPath); err != nil {
		err := os.MkdirAll(baseOutputPath, os.ModePerm)
		if err != nil {
			return "", ProcessJobOutput{err: err}
		}
	}

	// Writing over the input while it is still the mux source would
	// corrupt it, so a same-path job encodes to a temp file first
	constructTarget := job.OutputPath
	if samePath {
		constructTarget = path.Join(processFolderJob, "output"+path.Ext(job.OutputPath))
	}

	w.logger.Infof("Reconstructing video with audio and deflickered frames at %g fps", videoInfo.FrameRate)
	progressChan := make(chan float64)
	go w.forwardProgress(job.ID, "construct_video", progressChan)
	output, err = ConstructVideo(w.poolWorker.ctx, w.poolWorker.config.FFmpegOptions, deflickeredFolder,
		audioPath, constructTarget, videoInfo.FrameRate, progressChan)
	if err != nil {
		return output, ProcessJobOutput{err: err}
	}

	if samePath {
		w.logger.Debug("Moving temp output over the input file")
		if err := CopyFile(constructTarget, job.OutputPath); err != nil {
			return "", ProcessJobOutput{err: err}
		}
	}

	w.logger.Debug("Removing job folder")
	err = os.RemoveAll(processFolderJob)
	if err != nil {
		return "", ProcessJobOutput{err: err}
	}

	return "", ProcessJobOutput{}
}

func (w *Worker) runDeflicker(job *Job, videoInfo *VideoInfo, framesFolder string, deflickeredFolder string) error {
	opts, err := w.poolWorker.config.Deflicker.EngineOptions()
	if err != nil {
		return err
	}

	// The closure fires only after NewScheduler returns
	var scheduler *deflick.Scheduler
	opts.OnBatch = func(committed, total int) {
		w.poolWorker.sendWorkerProgress(w.id, job.ID, "deflicker", float64(committed)/float64(total)*100)
		w.poolWorker.hub.BroadcastMessage(WsBatchUpdate{
			WsBaseMessage: WsBaseMessage{Type: "batch_update"},
			WorkerID:      fmt.Sprintf("worker_%d", w.id),
			JobID:         job.ID,
			Status:        scheduler.Status(),
		})
	}

	scheduler, err = deflick.NewScheduler(opts, sqlite.Checkpoints(), w.logger)
	if err != nil {
		return err
	}

	source := NewImageDirSource(framesFolder, int(videoInfo.FrameCount))
	sink := NewImageDirSink(deflickeredFolder)
	return scheduler.Run(w.poolWorker.ctx, source, sink)
}

func (w *Worker) forwardProgress(jobID int64, step string, progressChan <-chan float64) {
	for progress := range progressChan {
		w.poolWorker.sendWorkerProgress(w.id, jobID, step, progress)
	}
}

func countFrames(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			count++
		}
	}

	return count, nil
}
