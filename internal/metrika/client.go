package metrika

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api-metrika.yandex.net"
	defaultUserAgent = "schoolleads-export/0.1"

	// DefaultGoal is the Metrika goal used for manual pushes from the
	// admin panel; it must exist on the counter.
	DefaultGoal = "TARGET_CLIENT"

	defaultCurrency = "RUB"
	maxCommentLen   = 255
)

// telegramIDPrefix: identifiers minted for Telegram visitors have no
// Metrika ClientID and go through the UserId column instead.
const telegramIDPrefix = "telegram_"

// Config controls how the Metrika client behaves.
type Config struct {
	BaseURL    string
	Token      string
	CounterID  string
	Timeout    time.Duration
	ProxyURL   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the Metrika offline-conversions upload endpoint.
type Client struct {
	baseURL    string
	token      string
	counterID  string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// APIError carries a non-200 answer from the Metrika API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metrika: API returned %d: %s", e.StatusCode, e.Body)
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("metrika: OAuth token is required")
	}
	if strings.TrimSpace(cfg.CounterID) == "" {
		return nil, errors.New("metrika: counter id is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport
		if proxy := strings.TrimSpace(cfg.ProxyURL); proxy != "" {
			proxyURL, err := url.Parse(proxy)
			if err != nil {
				return nil, fmt.Errorf("metrika: invalid proxy url: %w", err)
			}
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		counterID:  cfg.CounterID,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// Conversion is one offline conversion pushed to Metrika.
type Conversion struct {
	// ClientID is either a Metrika ClientID or a telegram_* UserId.
	ClientID string
	Goal     string
	At       time.Time
	Price    float64
	Currency string
	Comment  string
}

// Upload describes the server-side upload Metrika created for a push.
type Upload struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	LinkedQuantity int64  `json:"linked_quantity"`
}

type uploadResponse struct {
	Uploading Upload `json:"uploading"`
}

// UploadConversion pushes a single conversion through the official
// offline-conversions API. Metrika matches the ClientId (or UserId for
// Telegram visitors) against a visit within the attribution window.
func (c *Client) UploadConversion(ctx context.Context, conv Conversion) (*Upload, error) {
	if strings.TrimSpace(conv.ClientID) == "" {
		return nil, errors.New("metrika: client id is required")
	}
	if conv.Goal == "" {
		conv.Goal = DefaultGoal
	}
	if conv.At.IsZero() {
		conv.At = time.Now()
	}
	if conv.Price == 0 {
		conv.Price = 1
	}
	if conv.Currency == "" {
		conv.Currency = defaultCurrency
	}

	body, contentType, err := conversionForm(conv)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/management/v1/counter/%s/offline_conversions/upload", c.baseURL, c.counterID)
	comment := conv.Comment
	if comment == "" {
		comment = "Offline conversion"
	}
	if len(comment) > maxCommentLen {
		comment = comment[:maxCommentLen]
	}
	endpoint += "?comment=" + url.QueryEscape(comment)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("metrika: build request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrika: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("metrika: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("metrika: decode response: %w", err)
	}
	c.logger.Info("metrika conversion uploaded",
		"upload_id", parsed.Uploading.ID,
		"goal", conv.Goal,
		"status", parsed.Uploading.Status,
	)
	return &parsed.Uploading, nil
}

// conversionForm builds the two-line CSV Metrika expects and wraps it
// in a multipart body. Telegram pseudo-identifiers go through the
// UserId column; everything else is a ClientId.
func conversionForm(conv Conversion) (*bytes.Buffer, string, error) {
	idColumn := "ClientId"
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(conv.ClientID)), telegramIDPrefix) {
		idColumn = "UserId"
	}

	var csvBuf bytes.Buffer
	w := csv.NewWriter(&csvBuf)
	records := [][]string{
		{idColumn, "Target", "DateTime", "Price", "Currency"},
		{
			strings.TrimSpace(conv.ClientID),
			conv.Goal,
			strconv.FormatInt(conv.At.Unix(), 10),
			strconv.FormatFloat(conv.Price, 'f', -1, 64),
			conv.Currency,
		},
	}
	if err := w.WriteAll(records); err != nil {
		return nil, "", fmt.Errorf("metrika: encode csv: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="conversions.csv"`)
	header.Set("Content-Type", "text/csv; charset=utf-8")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("metrika: build form: %w", err)
	}
	if _, err := part.Write(csvBuf.Bytes()); err != nil {
		return nil, "", fmt.Errorf("metrika: write form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("metrika: close form: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
