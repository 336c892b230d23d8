package client

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"msgfetch/internal"
	"msgfetch/utils"
)

const (
	organizationID  = 1
	defaultPageSize = 200
)

type groupsQuery struct {
	OrganizationID int `url:"organization_id"`
}

type timelineQuery struct {
	Count   int    `url:"count"`
	Order   string `url:"order"`
	SinceID int64  `url:"since_id,omitempty"`
}

// Client is one logical session against the message API
type Client struct {
	baseURL    string
	pageSize   int
	store      *CredentialStore
	refresher  *TokenRefresher
	exec       *Executor
	downloader *MediaDownloader
	validate   *validator.Validate
	logger     *internal.SecureLogger
}

type options struct {
	baseURL   string
	appID     string
	userAgent string
	pageSize  int
	retry     *utils.RetryConfig
	limiter   internal.RateLimiter
	logger    *internal.SecureLogger
}

// Option configures a Client
type Option func(*options)

// WithBaseURL points the client at another API root
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithAppID sets the X-Talk-App-ID sent when the credentials carry none
func WithAppID(appID string) Option {
	return func(o *options) { o.appID = appID }
}

// WithUserAgent sets the User-Agent sent when the credentials carry none
func WithUserAgent(userAgent string) Option {
	return func(o *options) { o.userAgent = userAgent }
}

// WithPageSize sets the timeline page size
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithRetryConfig sets backoff and attempt caps
func WithRetryConfig(rc *utils.RetryConfig) Option {
	return func(o *options) { o.retry = rc }
}

// WithRateLimiter paces every request sent by the client
func WithRateLimiter(l internal.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *internal.SecureLogger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a client sending requests through doer, usually a shared *http.Client
func New(doer internal.HTTPDoer, creds internal.Credentials, opts ...Option) (*Client, error) {
	o := &options{
		baseURL:  internal.DefaultBaseURL,
		pageSize: defaultPageSize,
		retry:    utils.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = internal.GetLogger()
	}
	if o.pageSize < 1 {
		return nil, internal.NewValidationErrorWithValue("page_size", "must be >= 1", o.pageSize)
	}
	if err := utils.ValidateURL(o.baseURL); err != nil {
		return nil, err
	}

	store := NewCredentialStore(creds)

	refresher, err := NewTokenRefresher(doer, o.baseURL, o.logger)
	if err != nil {
		return nil, err
	}
	refresher.SetDefaultHeaders(o.appID, o.userAgent)

	exec := NewExecutor(doer, o.baseURL, store, refresher, o.retry, o.limiter, o.logger)
	exec.SetDefaultHeaders(o.appID, o.userAgent)

	return &Client{
		baseURL:    o.baseURL,
		pageSize:   o.pageSize,
		store:      store,
		refresher:  refresher,
		exec:       exec,
		downloader: NewMediaDownloader(exec, o.logger),
		validate:   newArgValidator(),
		logger:     o.logger,
	}, nil
}

// NewFromConfig creates a client with settings taken from cfg
func NewFromConfig(doer internal.HTTPDoer, creds internal.Credentials, cfg *internal.Config) (*Client, error) {
	return New(doer, creds,
		WithBaseURL(cfg.BaseURL),
		WithAppID(cfg.AppID),
		WithUserAgent(cfg.UserAgent),
		WithPageSize(cfg.PageSize),
		WithRetryConfig(utils.RetryConfigFromConfig(cfg)),
		WithRateLimiter(utils.NewRequestLimiter(cfg.RequestsPerSecond)),
	)
}

// Credentials returns the current credentials, including any refreshed token
func (c *Client) Credentials() internal.Credentials {
	return c.store.Get()
}

// GetGroups lists subscribed groups. Only active subscriptions are returned
// unless includeInactive is set, which adds expired, suspended and canceled ones.
func (c *Client) GetGroups(ctx context.Context, includeInactive bool) ([]internal.Group, error) {
	records, err := FetchAll(ctx, c.exec, PageRequest{
		Path:   "/groups",
		Params: groupsQuery{OrganizationID: organizationID},
	}, decodeGroups)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}

	subscribed := lo.Filter(records, func(g groupRecord, _ int) bool {
		if g.Subscription == nil {
			return false
		}
		status := internal.GroupStatus(g.Subscription.State)
		if !status.IsKnown() {
			c.logger.Warn("Skipping group %d with unknown subscription state %q", g.ID, g.Subscription.State)
			return false
		}
		return status == internal.GroupStatusActive || includeInactive
	})

	return lo.Map(subscribed, func(g groupRecord, _ int) internal.Group {
		return g.toGroup()
	}), nil
}

// GetMembers lists the members (timelines) of a group
func (c *Client) GetMembers(ctx context.Context, groupID int64) ([]internal.Member, error) {
	if err := c.check(struct {
		GroupID int64 `json:"group_id" validate:"gt=0"`
	}{groupID}); err != nil {
		return nil, err
	}

	records, err := FetchAll(ctx, c.exec, PageRequest{
		Path: "/groups/" + strconv.FormatInt(groupID, 10) + "/members",
	}, decodeMembers)
	if err != nil {
		return nil, fmt.Errorf("get members of group %d: %w", groupID, err)
	}

	return lo.Map(records, func(m memberRecord, _ int) internal.Member {
		return m.toMember(groupID)
	}), nil
}

// GetMessages returns every message of a group newer than sinceID (0 for all),
// in strictly ascending ID order. The server applies the since_id filter.
func (c *Client) GetMessages(ctx context.Context, groupID int64, sinceID int64) ([]internal.Message, error) {
	if err := c.check(struct {
		GroupID int64 `json:"group_id" validate:"gt=0"`
		SinceID int64 `json:"since_id" validate:"gte=0"`
	}{groupID, sinceID}); err != nil {
		return nil, err
	}

	path := "/groups/" + strconv.FormatInt(groupID, 10) + "/timeline"
	records, err := FetchAll(ctx, c.exec, PageRequest{
		Path:        path,
		Params:      timelineQuery{Count: c.pageSize, Order: "asc", SinceID: sinceID},
		Mode:        CursorPages,
		CursorParam: "continuation",
	}, decodeTimeline)
	if err != nil {
		return nil, fmt.Errorf("get messages of group %d: %w", groupID, err)
	}

	messages := make([]internal.Message, 0, len(records))
	for i, r := range records {
		if i > 0 && r.ID <= records[i-1].ID {
			return nil, internal.NewProtocolError(path,
				fmt.Sprintf("message ids out of order: %d after %d", r.ID, records[i-1].ID), nil)
		}
		msg, err := r.toMessage(groupID)
		if err != nil {
			return nil, internal.NewProtocolError(path, "invalid message record", err)
		}
		messages = append(messages, msg)
	}

	c.logger.Debug("Fetched %d messages for group %d since %d", len(messages), groupID, sinceID)
	return messages, nil
}

// DownloadFile saves url to filepath. See MediaDownloader.Download for the
// meaning of the returned bool.
func (c *Client) DownloadFile(ctx context.Context, url, filepath, timestamp string) (bool, error) {
	if err := c.check(struct {
		URL       string `json:"url" validate:"required,http_url"`
		Filepath  string `json:"filepath" validate:"required"`
		Timestamp string `json:"timestamp" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	}{url, filepath, timestamp}); err != nil {
		return false, err
	}

	return c.downloader.Download(ctx, url, filepath, timestamp)
}

// DownloadMessageMedia saves the primary media of msg under dir/<type>/<id>.<ext>
// and returns the file path. Messages without media return "" and no error.
func (c *Client) DownloadMessageMedia(ctx context.Context, msg internal.Message, dir string) (string, error) {
	media, ok := msg.PrimaryMedia()
	if !ok || msg.Type == internal.MessageTypeText {
		return "", nil
	}

	path := filepath.Join(dir, utils.MediaSubdir(msg.Type),
		strconv.FormatInt(msg.ID, 10)+"."+utils.MediaExtension(media.URL, media.Kind))

	saved, err := c.DownloadFile(ctx, media.URL, path, msg.CreatedAt.Format(time.RFC3339))
	if err != nil || !saved {
		return "", err
	}
	return path, nil
}

func newArgValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates arguments before anything is sent
func (c *Client) check(args any) error {
	err := c.validate.Struct(args)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return internal.NewValidationError("arguments", err.Error())
	}

	fe := fieldErrs[0]
	return internal.NewValidationErrorWithValue(fe.Field(), describeRule(fe), fe.Value())
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "required":
		return "is required"
	case "http_url":
		return "must be an absolute http(s) URL"
	case "datetime":
		return "must be an RFC 3339 timestamp"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}
