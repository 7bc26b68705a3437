package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/shaiso/Courier/internal/task"
)

const defaultHTTPTimeout = 30 * time.Second

// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
var ErrHTTPRequest = errors.New("http request failed")

// HTTPRequest — аргументы courier.http.
type HTTPRequest struct {
	// Method — HTTP-метод. Default: GET
	Method string `json:"method,omitempty"`

	// URL — адрес запроса (обязательно).
	URL string `json:"url"`

	Headers map[string]string `json:"headers,omitempty"`

	// Body сериализуется в JSON.
	Body any `json:"body,omitempty"`

	// TimeoutSec — таймаут запроса в секундах. Default: 30
	TimeoutSec float64 `json:"timeout_sec,omitempty"`

	// RetryOnStatus — коды ответа, при которых запрос повторяется.
	// По умолчанию: 429 и 5xx.
	RetryOnStatus []int `json:"retry_on_status,omitempty"`
}

// HTTPResponse — результат courier.http.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`

	// Body — JSON ответа или строка.
	Body any `json:"body"`
}

// HTTPTask создаёт задачу courier.http.
//
// Сетевые ошибки и коды из RetryOnStatus — повторяемые отказы,
// прочие коды >= 400 — терминальные.
func HTTPTask(client *http.Client) task.Task {
	if client == nil {
		client = http.DefaultClient
	}
	return task.NewKeyword(HTTPTaskName, func(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
		return doHTTP(ctx, client, req)
	})
}

func doHTTP(ctx context.Context, client *http.Client, r HTTPRequest) (*HTTPResponse, error) {
	if r.URL == "" {
		return nil, task.Reject(fmt.Errorf("%w: url is required", ErrHTTPRequest))
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultHTTPTimeout
	if r.TimeoutSec > 0 {
		timeout = time.Duration(r.TimeoutSec * float64(time.Second))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if r.Body != nil {
		bodyBytes, err := json.Marshal(r.Body)
		if err != nil {
			return nil, task.Reject(fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err))
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, bodyReader)
	if err != nil {
		return nil, task.Reject(fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err))
	}

	for key, val := range r.Headers {
		req.Header.Set(key, val)
	}

	// Content-Type по умолчанию для запросов с body
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	out := buildResponse(resp, respBody)

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
		if !shouldRetryStatus(resp.StatusCode, r.RetryOnStatus) {
			return nil, task.Reject(err)
		}
		return nil, err
	}

	return out, nil
}

// buildResponse формирует результат из HTTP-ответа.
func buildResponse(resp *http.Response, body []byte) *HTTPResponse {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// Парсим body: пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       parsedBody,
	}
}

// shouldRetryStatus проверяет, повторяем ли код ответа.
func shouldRetryStatus(status int, retryOn []int) bool {
	if len(retryOn) > 0 {
		return slices.Contains(retryOn, status)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
