package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Job struct {
	ID         int64  `json:"id"`
	Path       string `json:"path"`
	OutputPath string `json:"outPath"`
}

type FailedJob struct {
	ID     int64  `json:"id"`
	Output string `json:"output"`
	Error  string `json:"error"`
	Job    Job    `json:"job"`
}

var log *logrus.Entry
var sqlite Sqlite
var gQueue *Queue

func main() {
	// cli arguments
	configPath := flag.String("config_path", "./config.yml", "Path to the config yml file")
	flag.Parse()

	config, err := GetConfig(*configPath)
	if err != nil {
		fmt.Println("Failed to load config: ", err)
		os.Exit(1)
	}

	err = InitLogFile(config.LogPath)
	if err != nil {
		fmt.Println("Failed to init log file: ", err)
		os.Exit(1)
	}

	log, err = CreateLogger("main")
	if err != nil {
		fmt.Println("Failed to create logger: ", err)
		os.Exit(1)
	}

	sqlite = NewSqlite(config.DatabasePath)
	sqlite.RunMigrations()

	hub, err := NewHub()
	if err != nil {
		log.Panic("Failed to create ws hub: ", err)
	}

	jobs, err := sqlite.GetJobs()
	if err != nil {
		log.Panic("Failed to load jobs from database: ", err)
	}

	queue, err := NewQueue(jobs, hub)
	if err != nil {
		log.Panic("Failed to create queue: ", err)
	}
	gQueue = &queue

	// New clients get the queue contents right away instead of waiting
	// for the next change to broadcast
	hub.SetOnConnect(func() interface{} {
		return WsQueueUpdate{
			WsBaseMessage: WsBaseMessage{Type: "queue_update"},
			Jobs:          gQueue.GetJobs(),
		}
	})
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	var waitGroup sync.WaitGroup

	poolWorker, err := NewPoolWorker(ctx, gQueue, &config, hub, &waitGroup)
	if err != nil {
		log.Panic("Failed to create pool worker: ", err)
	}
	go poolWorker.RunDispatcher()

	// Graceful shutdown, the checkpoints keep batch progress so a
	// restarted instance resumes where it stopped
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChannel
		log.Info("Received signal: ", sig)
		cancel()
		waitGroup.Wait()
		os.Exit(0)
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(LoggerMiddleware(log))
	r.Use(gin.Recovery())

	r.GET("/ping", ping)
	r.GET("/queue", listJobQueue)
	r.POST("/queue", addJobToQueue)
	r.DELETE("/queue/:id", delJobFromQueue)
	r.GET("/failed", listFailedJobs)
	r.GET("/checkpoints", listCheckpoints)
	r.GET("/preview/:id", func(c *gin.Context) {
		previewFrame(&config, c)
	})
	r.GET("/ws", hub.HandleConnections)

	err = r.Run(fmt.Sprintf("%s:%d", config.BindAddress, config.Port))
	if err != nil {
		log.Panic("Failed to run http server: ", err)
	}
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "ping",
	})
}

func addJobToQueue(c *gin.Context) {
	var job Job

	if err := c.ShouldBind(&job); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	if job.Path == "" || job.OutputPath == "" {
		c.String(http.StatusBadRequest, "path and outPath are required")
		return
	}

	log.WithFields(StructFields(job)).Debug()
	if _, err := sqlite.InsertJob(&job); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	gQueue.Enqueue(job)
	c.JSON(http.StatusOK, job)
}

func delJobFromQueue(c *gin.Context) {
	idS := c.Param("id")
	id, err := strconv.ParseInt(idS, 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	log.WithField("id", id).Debug()
	_, ok := gQueue.RemoveByID(id)
	if !ok {
		c.String(http.StatusNotFound, "job not found in queue")
		return
	}

	if err := sqlite.DeleteJobByID(nil, id); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.String(http.StatusOK, "Success")
}

func listJobQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gQueue.GetJobs())
}

func listFailedJobs(c *gin.Context) {
	failedJobs, err := sqlite.GetFailedJobs()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, failedJobs)
}

func listCheckpoints(c *gin.Context) {
	checkpoints, err := sqlite.ListCheckpoints()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, checkpoints)
}
