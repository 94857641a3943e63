package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const timestampLayout = "20060102150405"

type Client struct {
	HTTP *http.Client

	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	BaseURL        string
	CallbackURL    string
}

func NewClient(key, secret, shortcode, passkey, baseURL, callbackURL string) *Client {
	return &Client{
		HTTP:           &http.Client{Timeout: 10 * time.Second},
		ConsumerKey:    key,
		ConsumerSecret: secret,
		Shortcode:      shortcode,
		Passkey:        passkey,
		BaseURL:        baseURL,
		CallbackURL:    callbackURL,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken fetches a short-lived bearer token from the OAuth endpoint
// using Basic auth over the consumer key/secret pair.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	url := c.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.ConsumerKey + ":" + c.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("malformed token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}
	return tok.AccessToken, nil
}

// Password derives the STK push password: base64 of shortcode+passkey+timestamp,
// with the timestamp in YYYYMMDDHHMMSS form.
func Password(shortcode, passkey string, t time.Time) (string, string) {
	timestamp := t.Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
	return password, timestamp
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush submits a push-payment request. The gateway's status code and raw
// body are returned alongside the parsed response so callers can pass the
// acknowledgment through unchanged. No retries here.
func (c *Client) STKPush(ctx context.Context, phone, amount, roomName string) (*STKPushResponse, int, []byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, 0, nil, err
	}

	password, timestamp := Password(c.Shortcode, c.Passkey, time.Now())

	payload := stkPushPayload{
		BusinessShortCode: c.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.CallbackURL,
		AccountReference:  roomName,
		TransactionDesc:   "Payment for " + roomName,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("stk push request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, nil, err
	}

	var parsed STKPushResponse
	// Body may not be our shape on gateway errors; the caller still gets raw.
	_ = json.Unmarshal(raw, &parsed)

	return &parsed, resp.StatusCode, raw, nil
}
