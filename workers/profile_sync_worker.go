package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pokecare/models"
	"pokecare/utils"

	"go.uber.org/zap"
)

// MirroredProfile matches one user in the sync service response.
type MirroredProfile struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []MirroredProfile `json:"users"`
}

// ProfileUpserter persists mirrored profiles.
type ProfileUpserter interface {
	UpsertProfiles(ctx context.Context, profiles []models.UserProfile) (int, error)
	LastProfileUpdate(ctx context.Context) time.Time
}

// ProfileSyncWorker mirrors user profiles from the sync service into user_profiles.
type ProfileSyncWorker struct {
	profiles     ProfileUpserter
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewProfileSyncWorker(profiles ProfileUpserter, syncServiceBaseURL, endpointPath, serviceToken string, interval time.Duration, logger *zap.Logger) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		profiles:     profiles,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		logger:       logger,
	}
}

// Run blocks until ctx is done. The first pass backfills from the epoch.
func (w *ProfileSyncWorker) Run(ctx context.Context) {
	w.logger.Info("🔁 [SYNC] starting profile sync (sync-service → user_profiles)")
	if err := w.SyncBatch(ctx, time.Time{}); err != nil {
		w.logger.Warn("⚠️ [SYNC] initial sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncBatch(ctx, w.profiles.LastProfileUpdate(ctx)); err != nil {
				w.logger.Error("❌ [SYNC] sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("⏹️ [SYNC] profile sync stopped")
			return
		}
	}
}

// SyncBatch fetches profile changes since the given time and upserts them.
func (w *ProfileSyncWorker) SyncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	w.logger.Debug("[SYNC] ➡️ fetching profile changes", zap.String("url", finalURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}
	if len(response.Users) == 0 {
		w.logger.Debug("[SYNC] ✅ no profile changes", zap.String("since", sinceStr))
		return nil
	}

	profiles := make([]models.UserProfile, 0, len(response.Users))
	for _, remote := range response.Users {
		id := remote.ExternalID
		if id == "" {
			id = remote.ID
		}
		profiles = append(profiles, models.UserProfile{
			ID:        id,
			Username:  remote.Username,
			Email:     remote.Email,
			CreatedAt: remote.CreatedAt,
			UpdatedAt: remote.UpdatedAt,
		})
	}

	n, err := w.profiles.UpsertProfiles(ctx, profiles)
	if err != nil {
		return err
	}
	w.logger.Info("✅ [SYNC] synced profiles", zap.Int("upserted", n))
	return nil
}
