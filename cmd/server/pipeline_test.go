package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/adscript-api/internal/api"
	"github.com/phrazzld/adscript-api/internal/config"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/events"
	"github.com/phrazzld/adscript-api/internal/mocks"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/platform/n8n"
	"github.com/phrazzld/adscript-api/internal/platform/slack"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/phrazzld/adscript-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slackCapture records every webhook post it receives.
type slackCapture struct {
	mu    sync.Mutex
	posts []string
}

func (c *slackCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.posts = append(c.posts, string(body))
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (c *slackCapture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.posts...)
}

func TestPipeline_DispatchFailureNotifiesSlack(t *testing.T) {
	log, _ := logger.GetTestLogger(t)

	n8nServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.Header.Get(n8n.APIKeyHeader))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("boom"))
	}))
	defer n8nServer.Close()

	slackServer := &slackCapture{}
	slackHTTP := httptest.NewServer(slackServer)
	defer slackHTTP.Close()

	cfg := &config.Config{
		App: config.AppConfig{BaseURL: "https://adscript.example.com"},
		Auth: config.AuthConfig{
			JWTSecret:                   "0123456789abcdef0123456789abcdef",
			TokenLifetimeMinutes:        60,
			RefreshTokenLifetimeMinutes: 1440,
			BCryptCost:                  4,
		},
		N8N: config.N8NConfig{
			WebhookURL:     n8nServer.URL,
			APIKey:         testAPIKey,
			WebhookSecret:  testWebhookSecret,
			TimeoutSeconds: 5,
			RateLimit:      config.RateLimitConfig{MaxAttempts: 10, DecayMinutes: 1},
			Retry:          config.RetryConfig{MaxAttempts: 2},
		},
		Slack: config.SlackConfig{WebhookURL: slackHTTP.URL, TimeoutSeconds: 5},
		Job:   config.JobConfig{WorkerCount: 1, QueueSize: 10, StuckJobAgeMinutes: 10},
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	require.NoError(t, err)

	tasks := mocks.NewMockAdScriptTaskStore()
	app := &application{
		config:       cfg,
		logger:       log,
		taskStore:    tasks,
		jobStore:     mocks.NewMockJobStore(),
		jwtService:   jwtService,
		eventEmitter: events.NewInMemoryEventEmitter(log),
		userService: service.NewUserService(
			mocks.NewMockUserStore(),
			&mocks.MockPasswordVerifier{ShouldSucceed: true},
			log,
		),
	}
	app.adScriptService, err = service.NewAdScriptService(tasks, app.eventEmitter, log)
	require.NoError(t, err)
	app.dispatcher = n8n.NewClient(n8n.Config{
		WebhookURL: cfg.N8N.WebhookURL,
		APIKey:     cfg.N8N.APIKey,
		Timeout:    cfg.N8N.Timeout(),
	}, log)
	app.notifier = slack.NewNotifier(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		BaseURL:    cfg.App.BaseURL,
		Timeout:    cfg.Slack.Timeout(),
	}, log)

	app.jobRunner, err = setupJobRunner(context.Background(), app)
	require.NoError(t, err)
	defer app.jobRunner.Stop()

	f := &routerFixture{app: app, tasks: tasks, handler: app.setupRouter()}
	bearer := f.register(t, "pipeline@example.com")

	script := strings.Repeat("abcdefghij", 25)
	rec := f.do(t, http.MethodPost, "/api/ad-scripts", mustJSON(t, api.CreateTaskRequest{
		ReferenceScript:    script,
		OutcomeDescription: "Make it punchier for a younger audience.",
	}), bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created api.TaskEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	taskID := created.Data.ID

	require.Eventually(t, func() bool {
		return len(slackServer.snapshot()) == cfg.N8N.Retry.MaxAttempts
	}, 5*time.Second, 10*time.Millisecond)

	task, err := tasks.GetByID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	require.NotNil(t, task.ErrorDetails)
	assert.Equal(t, "N8N webhook returned status 502: boom", *task.ErrorDetails)

	excerpt := script[:197] + "..."
	for _, post := range slackServer.snapshot() {
		var msg struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal([]byte(post), &msg))
		assert.Contains(t, msg.Text, "task "+strconv.FormatInt(taskID, 10)+": N8N webhook returned status 502: boom")
		assert.Contains(t, post, excerpt)
		assert.NotContains(t, post, script[:198])
	}
}
