package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qamtools/reviewtool/internal/domain"
)

// Client описывает минимальный интерфейс доступа к удалённому build-сервису.
type Client interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Post(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error)
	Delete(ctx context.Context, path string) ([]byte, error)
}

// HTTPClient — клиент build-сервиса поверх net/http с базовой аутентификацией.
type HTTPClient struct {
	base     *url.URL
	hc       *http.Client
	username string
	password string
}

// NewHTTPClient создаёт клиент для указанного базового URL.
func NewHTTPClient(baseURL, username, password string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote base url %q: %w", baseURL, err)
	}
	return &HTTPClient{
		base:     base,
		hc:       &http.Client{Timeout: timeout},
		username: username,
		password: password,
	}, nil
}

// Get выполняет GET-запрос и возвращает тело ответа.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post отправляет тело на эндпоинт и возвращает ответ.
func (c *HTTPClient) Post(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, query, body)
}

// Delete удаляет сущность по пути и возвращает ответ.
func (c *HTTPClient) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do собирает запрос, выполняет его и превращает неуспешный статус в
// транспортную ошибку с URL, кодом и сообщением.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, target.String(), err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.hc.Do(req)
	if err != nil {
		// Сетевой сбой тоже считается транспортной ошибкой: статус неизвестен.
		return nil, domain.NewTransportError(target.String(), 0, err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransportError(target.String(), resp.StatusCode, err.Error())
	}
	if resp.StatusCode >= 300 {
		return nil, domain.NewTransportError(target.String(), resp.StatusCode, snippet(payload))
	}
	return payload, nil
}

// snippet усечённо цитирует тело ошибки для сообщения.
func snippet(body []byte) string {
	const limit = 200
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
