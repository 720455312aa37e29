// 手动触发清扫任务的管理命令：
//
//	prune presences [-max-age 120s]  入队一次过期成员清扫
//	prune rooms                      入队一次空房间清扫
//
// 任务会被正在运行的 worker 进程消费。
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"channel-presence/internal/tasks"
)

func main() {
	maxAge := flag.Duration("max-age", 0, "override the stale threshold for presence pruning (0 = server default)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: prune [-max-age 120s] presences|rooms")
		os.Exit(2)
	}

	_ = godotenv.Load()
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		logrus.Fatal("environment variable REDIS_ADDR must be set")
	}
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	})
	defer client.Close()

	var (
		task *asynq.Task
		err  error
	)
	switch flag.Arg(0) {
	case "presences":
		var payload []byte
		payload, err = tasks.NewPresencePruneTask(*maxAge)
		if err == nil {
			task = asynq.NewTask(tasks.TypePresencePrune, payload)
		}
	case "rooms":
		var payload []byte
		payload, err = tasks.NewRoomPruneTask()
		if err == nil {
			task = asynq.NewTask(tasks.TypeRoomPrune, payload)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q (expected presences or rooms)\n", flag.Arg(0))
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatalf("Failed to build task payload: %v", err)
	}

	info, err := client.Enqueue(task, asynq.Queue("low"), asynq.Timeout(1*time.Minute))
	if err != nil {
		logrus.Fatalf("Failed to enqueue task: %v", err)
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue, "type": task.Type()}).
		Info("Prune task enqueued")
}
