package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ridepool/chat-service/internal/domain"
)

const historyPageSize = 100

// HTTPMessageStore talks to the durable-store HTTP surface.
type HTTPMessageStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPMessageStore(baseURL, token string) *HTTPMessageStore {
	return &HTTPMessageStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type historyPage struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor uint64           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

func (s *HTTPMessageStore) CreateMessage(ctx context.Context, groupID uint64, content string) (*domain.Message, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/groups/%d/messages", s.baseURL, groupID)
	data, err := s.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode created message: %w", err)
	}
	return &msg, nil
}

// ListMessages loads the full group history in creation order, walking the
// forward cursor until the store reports no more pages.
func (s *HTTPMessageStore) ListMessages(ctx context.Context, groupID uint64) ([]domain.Message, error) {
	var (
		all    []domain.Message
		cursor uint64
	)

	for {
		url := fmt.Sprintf(
			"%s/groups/%d/messages?direction=forward&limit=%d",
			s.baseURL, groupID, historyPageSize,
		)
		if cursor > 0 {
			url = fmt.Sprintf("%s&cursor=%d", url, cursor)
		}

		data, err := s.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var page historyPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode history page: %w", err)
		}

		all = append(all, page.Messages...)
		if !page.HasMore {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (s *HTTPMessageStore) do(ctx context.Context, method, url string, body *bytes.Reader) ([]byte, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !parsed.Success {
		if parsed.Error != nil {
			return nil, fmt.Errorf("store rejected request: %s: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return nil, fmt.Errorf("store rejected request: status %d", resp.StatusCode)
	}

	return parsed.Data, nil
}
