// Package notification tells external systems about finished job executions.
package notification

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Notifier delivers the outcome of a job execution.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error
}

// JobCompletionMessage is the payload published for a finished execution.
type JobCompletionMessage struct {
	ExecutionID   string    `json:"executionId"`
	JobInstanceID string    `json:"jobInstanceId"`
	JobName       string    `json:"jobName"`
	Status        string    `json:"status"`
	ExitStatus    string    `json:"exitStatus"`
	Duration      string    `json:"duration"`
	Failures      []string  `json:"failures,omitempty"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// NewJobCompletionMessage builds the message for execution.
func NewJobCompletionMessage(execution *model.JobExecution) JobCompletionMessage {
	msg := JobCompletionMessage{
		ExecutionID:   execution.ID,
		JobInstanceID: execution.JobInstanceID,
		JobName:       execution.JobName,
		Status:        execution.Status.String(),
		ExitStatus:    execution.ExitStatus.String(),
		Failures:      execution.Failures,
		FinishedAt:    time.Now(),
	}
	if execution.EndTime != nil {
		msg.Duration = execution.EndTime.Sub(execution.StartTime).String()
		msg.FinishedAt = *execution.EndTime
	}
	return msg
}

// LogNotifier writes the outcome to the log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	msg := NewJobCompletionMessage(execution)
	text := fmt.Sprintf("Job Notification: Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		msg.JobName, msg.ExecutionID, msg.Status, msg.ExitStatus, msg.Duration, len(msg.Failures))
	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", text)
	} else {
		logger.Warnf("%s", text)
	}
	return nil
}

// RedisNotifier publishes a JobCompletionMessage as JSON on a redis channel.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(NewJobCompletionMessage(execution))
	if err != nil {
		return fmt.Errorf("encode notification for execution %s: %w", execution.ID, err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification for execution %s on %s: %w", execution.ID, n.channel, err)
	}
	return nil
}

// Close closes the redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// NotificationJobListener notifies after every job execution. Delivery failures are
// logged and never change the execution's outcome.
type NotificationJobListener struct {
	notifier Notifier
}

func NewNotificationJobListener(notifier Notifier) *NotificationJobListener {
	return &NotificationJobListener{notifier: notifier}
}

func (l *NotificationJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

func (l *NotificationJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	// a stopped execution's context is already cancelled
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.notifier.NotifyJobCompletion(sendCtx, jobExecution); err != nil {
		logger.Warnf("Notification for JobExecution (ID: %s) failed: %v", jobExecution.ID, err)
	}
}

var (
	_ Notifier                  = (*LogNotifier)(nil)
	_ Notifier                  = (*RedisNotifier)(nil)
	_ port.JobExecutionListener = (*NotificationJobListener)(nil)
)
