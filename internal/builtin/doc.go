// Package builtin — стандартные задачи, доступные любому воркеру.
//
//   - courier.http  — HTTP-запрос (method, url, headers, body, timeout_sec)
//   - courier.sleep — задержка (duration_sec)
//   - courier.echo  — возвращает kwargs как результат
//
// Все задачи принимают именованные аргументы (kwargs).
package builtin

import (
	"net/http"

	"github.com/shaiso/Courier/internal/task"
)

// Имена задач.
const (
	HTTPTaskName  = "courier.http"
	SleepTaskName = "courier.sleep"
	EchoTaskName  = "courier.echo"
)

// Tasks возвращает все стандартные задачи. client == nil — http.DefaultClient.
func Tasks(client *http.Client) []task.Task {
	return []task.Task{
		HTTPTask(client),
		SleepTask(),
		EchoTask(),
	}
}

// Register регистрирует стандартные задачи в реестре.
func Register(b *task.Builder, client *http.Client) error {
	return b.RegisterAll(Tasks(client)...)
}
