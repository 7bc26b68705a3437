package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

// SendRequest — запрос на отправку вызова.
type SendRequest struct {
	Args   []json.RawMessage          `json:"args,omitempty"`
	Kwargs map[string]json.RawMessage `json:"kwargs,omitempty"`

	// ID — идентификатор вызова; пустой — будет сгенерирован.
	ID string `json:"id,omitempty"`

	Queue        string     `json:"queue,omitempty"`
	CountdownSec int        `json:"countdown_sec,omitempty"`
	ETA          *time.Time `json:"eta,omitempty"`
	ExpiresSec   int        `json:"expires_sec,omitempty"`
	MaxRetries   *int       `json:"max_retries,omitempty"`
	TimeoutMs    int64      `json:"timeout_ms,omitempty"`
}

// Signature строит вызов задачи name.
func (r *SendRequest) Signature(name string) (*task.Signature, error) {
	if r.CountdownSec < 0 || r.ExpiresSec < 0 || r.TimeoutMs < 0 {
		return nil, fmt.Errorf("%w: negative duration", task.ErrInvalidArgs)
	}

	var opts []task.Option
	if r.Queue != "" {
		opts = append(opts, task.WithQueue(r.Queue))
	}
	if r.MaxRetries != nil {
		opts = append(opts, task.WithMaxRetries(*r.MaxRetries))
	}
	if r.TimeoutMs > 0 {
		opts = append(opts, task.WithTimeout(time.Duration(r.TimeoutMs)*time.Millisecond))
	}

	args := r.Args
	if args == nil {
		args = []json.RawMessage{}
	}
	kwargs := r.Kwargs
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}

	return &task.Signature{
		Name:      name,
		Args:      args,
		Kwargs:    kwargs,
		Options:   task.NewOptions(opts...),
		ID:        r.ID,
		Countdown: time.Duration(r.CountdownSec) * time.Second,
		ETA:       r.ETA,
		ExpiresIn: time.Duration(r.ExpiresSec) * time.Second,
	}, nil
}

// SendResponse — ответ на отправку.
type SendResponse struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

// TaskResponse — описание известной задачи.
type TaskResponse struct {
	Name       string `json:"name"`
	Queue      string `json:"queue,omitempty"`
	TimeoutMs  int64  `json:"timeout_ms,omitempty"`
	MaxRetries *int   `json:"max_retries,omitempty"`
}

// TaskFromDefinition конвертирует task.Task в TaskResponse.
func TaskFromDefinition(t task.Task) TaskResponse {
	opts := t.Options()
	return TaskResponse{
		Name:       t.Name(),
		Queue:      opts.Queue,
		TimeoutMs:  opts.TimeoutValue().Milliseconds(),
		MaxRetries: opts.MaxRetries,
	}
}
