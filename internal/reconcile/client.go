// Package reconcile is the client half of the room protocol. There is no
// push channel, so clients learn about approval, removal and room end only
// by polling.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// APIError is any non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("meet api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("meet api: %d %s: %s", e.Status, e.Code, e.Message)
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func IsRoomNotFound(err error) bool { return hasCode(err, core.CodeRoomNotFound) }
func IsUserRemoved(err error) bool  { return hasCode(err, core.CodeUserRemoved) }

// IsTransient reports errors worth retrying on the next poll.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func roomPath(roomID domain.RoomID, parts ...string) string {
	p := "/api/rooms/" + url.PathEscape(string(roomID))
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er core.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &er) == nil && er.Code != "" {
			apiErr.Code, apiErr.Message = er.Code, er.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) ListRooms(ctx context.Context) ([]core.RoomStatus, error) {
	var out []core.RoomStatus
	err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &out)
	return out, err
}

func (c *Client) CreateRoom(ctx context.Context, hostName string) (*core.CreateRoomResult, error) {
	var out core.CreateRoomResult
	if err := c.do(ctx, http.MethodPost, "/api/rooms", core.CreateRoomRequest{HostName: hostName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID domain.RoomID, userName string, isHost bool) (*core.JoinResult, error) {
	var out core.JoinResult
	req := core.JoinRoomRequest{UserName: userName, IsHost: isHost}
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "join"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RoomStatus(ctx context.Context, roomID domain.RoomID) (*core.RoomStatus, error) {
	var out core.RoomStatus
	if err := c.do(ctx, http.MethodGet, roomPath(roomID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ApproveUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.Participant, error) {
	var out core.ApproveResponse
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "approve", string(userID)), nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) UserStatus(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*core.UserStatusResponse, error) {
	var out core.UserStatusResponse
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "user", string(userID), "status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WaitingList(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "waiting"), nil, &out)
	return out, err
}

func (c *Client) Participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "participants"), nil, &out)
	return out, err
}

func (c *Client) Locate(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*core.ParticipantLocation, error) {
	var out core.ParticipantLocation
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "participant", string(userID)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMedia(ctx context.Context, roomID domain.RoomID, userID domain.UserID, req core.MediaRequest) (*domain.Participant, error) {
	var out domain.Participant
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "participants", string(userID), "media"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "leave", string(userID)), nil, nil)
}

func (c *Client) EndRoom(ctx context.Context, roomID domain.RoomID) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "end"), nil, nil)
}
