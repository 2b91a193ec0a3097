package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// GitHubProvider verifies and parses GitHub webhook deliveries.
type GitHubProvider struct{}

func NewGitHubProvider() *GitHubProvider { return &GitHubProvider{} }

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) CanHandle(headers http.Header) bool {
	return headers.Get("X-Hub-Signature-256") != "" || headers.Get("X-GitHub-Event") != ""
}

// Verify checks X-Hub-Signature-256 against an HMAC-SHA256 of the raw
// body (spec.md §4.4). A missing signature with a configured secret is a
// reject, not a skip.
func (p *GitHubProvider) Verify(body []byte, headers http.Header, secret string) (bool, error) {
	sigHeader := headers.Get("X-Hub-Signature-256")
	if sigHeader == "" {
		return false, fmt.Errorf("missing X-Hub-Signature-256")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return false, nil
	}
	return true, nil
}

// Parse maps pull_request/issues events to pr.opened/issue.opened
// signals, routing by repository name prefix per spec.md §4.4.
func (p *GitHubProvider) Parse(body []byte, headers http.Header) (models.Signal, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Signal{}, fmt.Errorf("github: decode payload: %w", err)
	}

	event := headers.Get("X-GitHub-Event")
	signalType := models.SignalIssueOpened
	if event == "pull_request" {
		signalType = models.SignalPROpened
	}

	repo := repoFullName(payload)
	org := orgForRepo(repo)

	return signalbus.New(signalType, p.Name(), org, time.Now().UnixMilli(), map[string]interface{}{
		"action":      stringField(payload, "action"),
		"repository":  repo,
		"verified":    true,
	}), nil
}

func repoFullName(payload map[string]interface{}) string {
	repo, ok := payload["repository"].(map[string]interface{})
	if !ok {
		return ""
	}
	if name, _ := repo["full_name"].(string); name != "" {
		return name
	}
	name, _ := repo["name"].(string)
	return name
}

func stringField(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}

// orgForRepo maps a repository's full name to an organization code. A
// repo owned by BlackRoad-AI routes to AI; everything else defaults to
// OS (spec.md §4.4).
func orgForRepo(repoFullName string) string {
	if strings.HasPrefix(repoFullName, "BlackRoad-AI/") {
		return "AI"
	}
	return "OS"
}
