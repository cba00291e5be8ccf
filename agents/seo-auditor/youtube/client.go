package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"seo-agent/internal/models"
	"seo-agent/shared/config"
)

// ChannelSnapshot is the result of one channel inspection.
type ChannelSnapshot struct {
	ChannelID    string
	ChannelTitle string
	Videos       []models.Video
}

type Client struct {
	service     *youtube.Service
	config      *config.YouTubeConfig
	oauthConfig *oauth2.Config
	token       *oauth2.Token
}

func NewClient(cfg *config.YouTubeConfig) (*Client, error) {
	ctx := context.Background()

	// Metadata updates need the full YouTube scope, not readonly.
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.force-ssl"},
		Endpoint:     google.Endpoint,
	}

	token, err := getToken(oauthConfig, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth token: %w", err)
	}

	tokenSource := &tokenSaver{
		config:    oauthConfig,
		token:     token,
		tokenFile: cfg.TokenFile,
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)

	service, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{
		service:     service,
		config:      cfg,
		oauthConfig: oauthConfig,
		token:       token,
	}, nil
}

// ListChannelVideos pulls every upload of the channel with its statistics,
// via the channel's uploads playlist and batched Videos.List calls.
func (c *Client) ListChannelVideos(ctx context.Context, channelID string) (*ChannelSnapshot, error) {
	channelsResp, err := c.service.Channels.List([]string{"snippet", "contentDetails"}).
		Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, classifyErr(fmt.Errorf("failed to get channel %s: %w", channelID, err))
	}
	if len(channelsResp.Items) == 0 {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}

	channel := channelsResp.Items[0]
	snapshot := &ChannelSnapshot{
		ChannelID:    channel.Id,
		ChannelTitle: channel.Snippet.Title,
	}

	uploadsPlaylist := ""
	if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
		uploadsPlaylist = channel.ContentDetails.RelatedPlaylists.Uploads
	}
	if uploadsPlaylist == "" {
		return nil, fmt.Errorf("channel %s has no uploads playlist", channelID)
	}

	var videoIDs []string
	pageToken := ""
	for {
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(uploadsPlaylist).MaxResults(50).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classifyErr(fmt.Errorf("failed to list uploads playlist: %w", err))
		}
		for _, item := range resp.Items {
			videoIDs = append(videoIDs, item.ContentDetails.VideoId)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	log.Printf("Found %d uploads on channel %s", len(videoIDs), snapshot.ChannelTitle)

	const batchSize = 50
	for i := 0; i < len(videoIDs); i += batchSize {
		end := i + batchSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}

		resp, err := c.service.Videos.List([]string{"snippet", "status", "statistics"}).
			Id(strings.Join(videoIDs[i:end], ",")).Context(ctx).Do()
		if err != nil {
			return nil, classifyErr(fmt.Errorf("failed to get video details: %w", err))
		}

		for _, item := range resp.Items {
			snapshot.Videos = append(snapshot.Videos, toModelVideo(item))
		}
	}

	return snapshot, nil
}

// FetchVideo reads the live snippet and status for one video id. Used as the
// read half of the applier's read-before-write cycle.
func (c *Client) FetchVideo(ctx context.Context, videoID string) (*youtube.Video, error) {
	resp, err := c.service.Videos.List([]string{"snippet", "status"}).
		Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, classifyErr(fmt.Errorf("failed to fetch video %s: %w", videoID, err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	return resp.Items[0], nil
}

// UpdateVideo writes back a video resource previously obtained from
// FetchVideo, with only the SEO fields modified by the caller.
func (c *Client) UpdateVideo(ctx context.Context, video *youtube.Video) error {
	_, err := c.service.Videos.Update([]string{"snippet", "status"}, video).Context(ctx).Do()
	if err != nil {
		return classifyErr(fmt.Errorf("failed to update video %s: %w", video.Id, err))
	}
	return nil
}

func toModelVideo(item *youtube.Video) models.Video {
	video := models.Video{
		ID: item.Id,
		Metadata: models.MetadataSet{
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			CategoryID:  item.Snippet.CategoryId,
			Tags:        item.Snippet.Tags,
		},
	}
	if publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		video.PublishedAt = publishedAt
	}
	if item.Status != nil {
		video.PrivacyStatus = item.Status.PrivacyStatus
	}
	if item.Statistics != nil {
		video.ViewCount = int64(item.Statistics.ViewCount)
		video.LikeCount = int64(item.Statistics.LikeCount)
		video.CommentCount = int64(item.Statistics.CommentCount)
	}
	return video
}

// Quota exhaustion signatures YouTube reports only in error text.
var quotaSignatures = []string{"quota", "daily limit", "quotaexceeded"}

// classifyErr converts quota exhaustion into models.QuotaError exactly once,
// here at the API boundary, so the pipeline never has to sniff message text.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			if strings.EqualFold(item.Reason, "quotaExceeded") || strings.EqualFold(item.Reason, "dailyLimitExceeded") {
				return &models.QuotaError{Message: err.Error()}
			}
		}
	}

	lower := strings.ToLower(err.Error())
	for _, sig := range quotaSignatures {
		if strings.Contains(lower, sig) {
			return &models.QuotaError{Message: err.Error()}
		}
	}
	return err
}

// tokenSaver wraps an oauth2.TokenSource to automatically save refreshed
// tokens, so refreshed tokens survive application restarts.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	mu        sync.Mutex // Protects concurrent token refresh operations
}

// Token implements oauth2.TokenSource. It returns the current token,
// refreshing it if necessary and saving any refreshed token to disk.
func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tokenSource := ts.config.TokenSource(context.Background(), ts.token)

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != ts.token.AccessToken {
		log.Println("Token refreshed, saving to file")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			log.Printf("Warning: Failed to save refreshed token: %v", err)
		}
	}

	return newToken, nil
}

// getToken retrieves an OAuth2 token from disk or initiates the device
// authorization flow if needed. A stored token with a refresh token is kept
// even when expired, since it can be refreshed automatically.
func getToken(config *oauth2.Config, tokenFile string) (*oauth2.Token, error) {
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		if tok.RefreshToken != "" {
			log.Printf("Loaded token from file (expires: %v)", tok.Expiry)
			return tok, nil
		}
		if tok.Valid() {
			return tok, nil
		}
	}

	log.Println("Getting new token from web...")
	tok, err = getTokenFromWeb(config)
	if err != nil {
		return nil, err
	}

	if err := saveToken(tokenFile, tok); err != nil {
		log.Printf("Warning: Failed to save token: %v", err)
	}
	return tok, nil
}

func getTokenFromWeb(config *oauth2.Config) (*oauth2.Token, error) {
	if tok, err := getTokenWithDeviceFlow(config); err == nil {
		return tok, nil
	} else {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			log.Printf("Device authorization response failed (%s): %s", retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body)))
		} else {
			log.Printf("Device authorization flow failed: %v", err)
		}

		return nil, fmt.Errorf("device authorization failed: %w. Ensure your OAuth client is created as 'TVs and Limited Input devices' and that the YouTube Data API v3 is enabled.", err)
	}
}

func getTokenWithDeviceFlow(config *oauth2.Config) (*oauth2.Token, error) {
	ctx := context.Background()

	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("YOUTUBE DEVICE AUTHORIZATION REQUIRED\n")
	fmt.Printf("%s\n", strings.Repeat("=", 80))
	fmt.Printf("1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Printf("2. Enter this code when prompted: %s\n\n", resp.UserCode)
	if completeURL := strings.TrimSpace(resp.VerificationURIComplete); completeURL != "" {
		fmt.Printf("   If Google accepts direct links for your account, you can instead open:\n\n")
		fmt.Printf("   %s\n\n", completeURL)
	}
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")
	fmt.Printf("%s\n", strings.Repeat("-", 80))

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Printf("\nAuthorization successful! Token saved.\n")
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))

	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	return nil
}

// RefreshToken proactively refreshes the OAuth token if needed, saving the
// refreshed token to disk. Called before scheduled runs so a stale token
// never interrupts a batch midway.
func (c *Client) RefreshToken() error {
	tokenSource := c.oauthConfig.TokenSource(context.Background(), c.token)

	newToken, err := tokenSource.Token()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	if newToken.AccessToken != c.token.AccessToken {
		log.Println("Token refreshed, saving to file")
		c.token = newToken
		if err := saveToken(c.config.TokenFile, newToken); err != nil {
			return fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}

	return nil
}
