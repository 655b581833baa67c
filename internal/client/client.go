// Package client provides a Go client for the vhibes API.
package client

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alphabot-ai/vhibes/internal/auth"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Client is a vhibes API client.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Token       string
	TokenExp    time.Time
	AdminSecret string
}

// Credentials hold a secp256k1 key and the address derived from it.
type Credentials struct {
	Address    string
	PrivateKey *secp256k1.PrivateKey
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status   int
	Message  string
	Code     string
	Metadata map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateCredentials creates a fresh key.
func GenerateCredentials() (*Credentials, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return credentialsFor(key), nil
}

// CredentialsFromHex loads a 32-byte private key, hex encoded with or without 0x.
func CredentialsFromHex(privHex string) (*Credentials, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	return credentialsFor(secp256k1.PrivKeyFromBytes(raw)), nil
}

func credentialsFor(key *secp256k1.PrivateKey) *Credentials {
	return &Credentials{
		Address:    auth.AddressFromPublicKey(key.PubKey()).String(),
		PrivateKey: key,
	}
}

// PrivateKeyHex exports the key for storage.
func (creds *Credentials) PrivateKeyHex() string {
	return hex.EncodeToString(creds.PrivateKey.Serialize())
}

// Sign produces a personal-sign signature of message.
func (creds *Credentials) Sign(message string) string {
	return auth.SignMessage(creds.PrivateKey, message)
}

// RequestChallenge asks the server for a login challenge for address.
func (c *Client) RequestChallenge(address string) (string, error) {
	var result struct {
		Challenge string `json:"challenge"`
	}
	if err := c.call(http.MethodPost, "/api/auth/challenge", map[string]string{"address": address}, &result); err != nil {
		return "", err
	}
	return result.Challenge, nil
}

// Authenticate gets a bearer token for the credentials.
func (c *Client) Authenticate(creds *Credentials) error {
	challenge, err := c.RequestChallenge(creds.Address)
	if err != nil {
		return fmt.Errorf("get challenge: %w", err)
	}
	reqBody := map[string]string{
		"address":   creds.Address,
		"challenge": challenge,
		"signature": creds.Sign(challenge),
	}
	var result struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	if err := c.call(http.MethodPost, "/api/auth/verify", reqBody, &result); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	c.Token = result.AccessToken
	c.TokenExp = result.ExpiresAt
	return nil
}

// IsAuthenticated returns true if the client has a valid token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

// doRequest performs an HTTP request with whatever credentials the client holds.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.AdminSecret)
	} else if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// call runs a request and decodes a 2xx body into out.
func (c *Client) call(method, path string, body, out any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error    string            `json:"error"`
		Code     string            `json:"code"`
		Metadata map[string]string `json:"metadata"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
		apiErr.Metadata = payload.Metadata
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// CodeOf returns the API error code carried by err, if any.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type Level struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	MinPoints uint64 `json:"min_points"`
}

type Account struct {
	Address        string     `json:"address"`
	Balance        uint64     `json:"balance"`
	LoginStreak    uint64     `json:"login_streak"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	ActivityStreak uint64     `json:"activity_streak"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	Level          Level      `json:"level"`
	Participation  uint64     `json:"participation"`
	ChallengeIDs   []int64    `json:"challenge_ids"`
	ResponseIDs    []int64    `json:"response_ids"`
}

type LoginResult struct {
	Counted bool    `json:"counted"`
	Awarded uint64  `json:"awarded"`
	Account Account `json:"account"`
}

type Challenge struct {
	ID          int64     `json:"id"`
	Initiator   string    `json:"initiator"`
	PromptText  string    `json:"prompt_text"`
	PromptImage string    `json:"prompt_image"`
	CreatedAt   time.Time `json:"created_at"`
	ResponseIDs []int64   `json:"response_ids"`
}

type Response struct {
	ID               int64     `json:"id"`
	Responder        string    `json:"responder"`
	ChallengeID      int64     `json:"challenge_id"`
	ParentResponseID int64     `json:"parent_response_id"`
	Text             string    `json:"text"`
	Image            string    `json:"image"`
	CreatedAt        time.Time `json:"created_at"`
	ChildResponseIDs []int64   `json:"child_response_ids"`
}

type ThreadNode struct {
	Response
	Replies []ThreadNode `json:"replies"`
}

type Thread struct {
	Challenge Challenge    `json:"challenge"`
	Responses []ThreadNode `json:"responses"`
}

type Participant struct {
	Address string
	Count   uint64
}

type Claim struct {
	TokenID   int64     `json:"token_id"`
	Account   string    `json:"account"`
	Type      string    `json:"type"`
	ClaimedAt time.Time `json:"claimed_at"`
}

type BadgeStatus struct {
	Type     string `json:"type"`
	Required uint64 `json:"required"`
	Actual   uint64 `json:"actual"`
	Claimed  bool   `json:"claimed"`
	Eligible bool   `json:"eligible"`
	Blocker  string `json:"blocker"`
}

type Record struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Kind      string         `json:"kind"`
	Actor     string         `json:"actor"`
	Account   string         `json:"account"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// DailyLogin counts today's login for the authenticated address.
func (c *Client) DailyLogin() (*LoginResult, error) {
	var result LoginResult
	if err := c.call(http.MethodPost, "/api/login", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetAccount(address string) (*Account, error) {
	var acc Account
	if err := c.call(http.MethodGet, "/api/accounts/"+url.PathEscape(address), nil, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// Badges returns the claims and the eligibility report for address.
func (c *Client) Badges(address string) ([]Claim, []BadgeStatus, error) {
	var result struct {
		Claims      []Claim       `json:"claims"`
		Eligibility []BadgeStatus `json:"eligibility"`
	}
	if err := c.call(http.MethodGet, "/api/accounts/"+url.PathEscape(address)+"/badges", nil, &result); err != nil {
		return nil, nil, err
	}
	return result.Claims, result.Eligibility, nil
}

func (c *Client) StartChallenge(text, image string) (*Challenge, error) {
	reqBody := map[string]string{}
	if text != "" {
		reqBody["prompt_text"] = text
	}
	if image != "" {
		reqBody["prompt_image"] = image
	}
	var ch Challenge
	if err := c.call(http.MethodPost, "/api/challenges", reqBody, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// JoinChallenge responds to a challenge. parentID 0 answers the prompt itself.
func (c *Client) JoinChallenge(challengeID, parentID int64, text, image string) (*Response, error) {
	reqBody := map[string]any{"challenge_id": challengeID}
	if parentID != 0 {
		reqBody["parent_response_id"] = parentID
	}
	if text != "" {
		reqBody["text"] = text
	}
	if image != "" {
		reqBody["image"] = image
	}
	var resp Response
	if err := c.call(http.MethodPost, "/api/responses", reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetChallenge(id int64) (*Challenge, error) {
	var ch Challenge
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/challenges/%d", id), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) GetResponse(id int64) (*Response, error) {
	var resp Response
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/responses/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ActiveChallenges lists the newest challenges.
func (c *Client) ActiveChallenges(limit int) ([]Challenge, error) {
	var result struct {
		Challenges []Challenge `json:"challenges"`
	}
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/challenges?limit=%d", limit), nil, &result); err != nil {
		return nil, err
	}
	return result.Challenges, nil
}

func (c *Client) Thread(challengeID int64) (*Thread, error) {
	var th Thread
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/challenges/%d/thread", challengeID), nil, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

func (c *Client) TopParticipants(limit int) ([]Participant, error) {
	var result struct {
		Accounts []string `json:"accounts"`
		Counts   []uint64 `json:"counts"`
	}
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/participants?limit=%d", limit), nil, &result); err != nil {
		return nil, err
	}
	if len(result.Accounts) != len(result.Counts) {
		return nil, errors.New("participants: accounts and counts differ in length")
	}
	out := make([]Participant, len(result.Accounts))
	for i := range result.Accounts {
		out[i] = Participant{Address: result.Accounts[i], Count: result.Counts[i]}
	}
	return out, nil
}

func (c *Client) ClaimBadge(badgeType string) (*Claim, error) {
	var claim Claim
	if err := c.call(http.MethodPost, "/api/badges/"+url.PathEscape(badgeType)+"/claim", nil, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// ReportActivity records one activity for account as the authenticated collaborator.
func (c *Client) ReportActivity(source, account string) (uint64, error) {
	var result struct {
		Count uint64 `json:"count"`
	}
	reqBody := map[string]string{"source": source, "account": account}
	if err := c.call(http.MethodPost, "/api/activity", reqBody, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Records pages through the change feed. Pass the returned next value as after.
func (c *Client) Records(after int64, limit int) ([]Record, int64, error) {
	var result struct {
		Records []Record `json:"records"`
		Next    int64    `json:"next"`
	}
	if err := c.call(http.MethodGet, fmt.Sprintf("/api/records?after=%d&limit=%d", after, limit), nil, &result); err != nil {
		return nil, 0, err
	}
	return result.Records, result.Next, nil
}

// Authorize grants or revokes collaborator rights. Requires AdminSecret.
func (c *Client) Authorize(identity string, authorized bool) error {
	reqBody := map[string]any{"identity": identity, "authorized": authorized}
	return c.call(http.MethodPost, "/api/admin/authorize", reqBody, nil)
}

// SetBadgeMetadata sets the metadata reference that makes a badge claimable. Requires AdminSecret.
func (c *Client) SetBadgeMetadata(badgeType, ref string) error {
	return c.call(http.MethodPost, "/api/admin/badges/"+url.PathEscape(badgeType), map[string]string{"metadata_ref": ref}, nil)
}

// SetSources replaces the activity sources the badge engine reads. Requires AdminSecret.
func (c *Client) SetSources(sources []string) error {
	return c.call(http.MethodPost, "/api/admin/sources", map[string]any{"sources": sources}, nil)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient generates a key and returns a client logged in with it.
func (h *TestHelper) CreateAuthenticatedClient() (*Client, *Credentials, error) {
	creds, err := GenerateCredentials()
	if err != nil {
		return nil, nil, fmt.Errorf("generate credentials: %w", err)
	}

	c := New(h.BaseURL)
	if err := c.Authenticate(creds); err != nil {
		return nil, nil, err
	}
	return c, creds, nil
}

// Admin returns a client that authenticates as the owner.
func (h *TestHelper) Admin(secret string) *Client {
	c := New(h.BaseURL)
	c.AdminSecret = secret
	return c
}
