// internal/common/directory/client.go
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrNoManager is returned when neither the directory service nor the users
// table can produce a manager for the given user.
var ErrNoManager = errors.New("no manager configured for user")

// ManagerResolver resolves the manager responsible for a user. Implemented by
// Client; faked in tests.
type ManagerResolver interface {
	ResolveManager(ctx context.Context, userID string) (string, error)
}

// ContactLookup resolves delivery contact details for a user.
type ContactLookup interface {
	Contact(ctx context.Context, userID string) (*models.User, error)
}

// Client talks to the portal's user-directory HTTP service for manager
// resolution and reads contact rows from the users table. Manager lookups are
// cached in redis since the org chart changes rarely.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	db         *sql.DB
	redis      *redis.Client
	cacheTTL   time.Duration
}

type managerResponse struct {
	UserID    string `json:"userId"`
	ManagerID string `json:"managerId"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration, db *sql.DB, rdb *redis.Client, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		db:         db,
		redis:      rdb,
		cacheTTL:   cacheTTL,
	}
}

// ResolveManager returns the manager id for userID. Order: redis cache,
// directory service, users.manager_id fallback.
func (c *Client) ResolveManager(ctx context.Context, userID string) (string, error) {
	cacheKey := "mgr:" + userID
	if c.redis != nil {
		if val, err := c.redis.Get(ctx, cacheKey).Result(); err == nil && val != "" {
			return val, nil
		}
	}

	managerID, err := c.fetchManager(ctx, userID)
	if err != nil || managerID == "" {
		// Directory unavailable or silent: fall back to the users table.
		managerID, err = c.managerFromStore(ctx, userID)
		if err != nil {
			return "", err
		}
	}
	if managerID == "" {
		return "", ErrNoManager
	}

	if c.redis != nil {
		_ = c.redis.Set(ctx, cacheKey, managerID, c.cacheTTL).Err()
	}
	return managerID, nil
}

func (c *Client) fetchManager(ctx context.Context, userID string) (string, error) {
	if c.baseURL == "" {
		return "", nil
	}

	url := fmt.Sprintf("%s/api/users/%s/manager", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create manager request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute manager request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("directory request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var mr managerResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", fmt.Errorf("failed to decode manager response: %w", err)
	}
	return mr.ManagerID, nil
}

func (c *Client) managerFromStore(ctx context.Context, userID string) (string, error) {
	var managerID sql.NullString
	query := `SELECT manager_id FROM users WHERE id = $1`
	err := c.db.QueryRowContext(ctx, query, userID).Scan(&managerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoManager
		}
		return "", apperrors.NewManagerLookupFailedError(userID, err)
	}
	if !managerID.Valid {
		return "", nil
	}
	return managerID.String, nil
}

// Contact returns the delivery contact row for userID.
func (c *Client) Contact(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	var phone, managerID sql.NullString
	query := `SELECT id, email, phone, manager_id FROM users WHERE id = $1`
	err := c.db.QueryRowContext(ctx, query, userID).Scan(&u.ID, &u.Email, &phone, &managerID)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		u.Phone = phone.String
	}
	if managerID.Valid {
		u.ManagerID = &managerID.String
	}
	return &u, nil
}
